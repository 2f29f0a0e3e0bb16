package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"kbchat/internal/domain"
)

// On-disk layout per knowledge-base directory:
//
//	embeddings.bin  header (magic, version, rows, dim) + row-major float32 LE
//	meta.json       JSON array of EmbeddingRecord, same count and order
//
// The record count must match the matrix row count 1:1.
const (
	vectorsFile = "embeddings.bin"
	metaFile    = "meta.json"

	formatVersion = 1
)

var magic = [4]byte{'K', 'B', 'I', 'X'}

type fileHeader struct {
	Magic   [4]byte
	Version uint32
	Rows    uint32
	Dim     uint32
}

func readSnapshot(dir string) (*Snapshot, error) {
	vf, err := os.Open(filepath.Join(dir, vectorsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotIndexed
		}
		return nil, err
	}
	defer vf.Close()

	metaData, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: vector matrix present but metadata missing", domain.ErrCorruptIndex)
		}
		return nil, err
	}
	var records []domain.EmbeddingRecord
	if err := json.Unmarshal(metaData, &records); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", domain.ErrCorruptIndex, err)
	}

	r := bufio.NewReader(vf)
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: read matrix header: %v", domain.ErrCorruptIndex, err)
	}
	if hdr.Magic != magic || hdr.Version != formatVersion {
		return nil, fmt.Errorf("%w: unrecognized matrix header", domain.ErrCorruptIndex)
	}
	if int(hdr.Rows) != len(records) {
		return nil, fmt.Errorf("%w: %d matrix rows for %d metadata records",
			domain.ErrCorruptIndex, hdr.Rows, len(records))
	}

	vectors := make([][]float32, hdr.Rows)
	for i := range vectors {
		row := make([]float32, hdr.Dim)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("%w: truncated matrix at row %d: %v", domain.ErrCorruptIndex, i, err)
		}
		vectors[i] = row
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing bytes after matrix", domain.ErrCorruptIndex)
	}

	return &Snapshot{Dim: int(hdr.Dim), Vectors: vectors, Records: records}, nil
}

func writeSnapshot(dir string, snap *Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	vPath := filepath.Join(dir, vectorsFile)
	vTmp := vPath + ".tmp"
	vf, err := os.Create(vTmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(vf)
	hdr := fileHeader{Magic: magic, Version: formatVersion, Rows: uint32(len(snap.Vectors)), Dim: uint32(snap.Dim)}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		vf.Close()
		return err
	}
	for _, row := range snap.Vectors {
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			vf.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		vf.Close()
		return err
	}
	if err := vf.Close(); err != nil {
		return err
	}

	metaData, err := json.Marshal(snap.Records)
	if err != nil {
		return err
	}
	mPath := filepath.Join(dir, metaFile)
	mTmp := mPath + ".tmp"
	if err := os.WriteFile(mTmp, metaData, 0o644); err != nil {
		return err
	}

	// Matrix first, metadata second; readers treat a lone matrix as corrupt
	// rather than silently serving stale metadata.
	if err := os.Rename(vTmp, vPath); err != nil {
		return err
	}
	return os.Rename(mTmp, mPath)
}

func removeSnapshot(dir string) error {
	for _, name := range []string{vectorsFile, metaFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
