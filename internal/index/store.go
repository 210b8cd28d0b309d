package index

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// File names of the persisted pair. Both live in the same directory.
const (
	VectorFile   = "index.vec"
	MetadataFile = "metadata.json"
)

const (
	vectorMagic   = "DRVI"
	vectorVersion = uint32(1)
)

// ErrIndexCorrupt means the pair exists but the two files disagree or cannot be read.
var ErrIndexCorrupt = errors.New("index files are inconsistent")

type metadataFile struct {
	BuildID        string         `json:"build_id"`
	EmbeddingModel string         `json:"embedding_model"`
	Dimension      int            `json:"dimension"`
	CorpusVersion  string         `json:"corpus_version,omitempty"`
	CorpusDigest   string         `json:"corpus_digest,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Count          int            `json:"count"`
	Entries        []domain.Chunk `json:"entries"`
}

type vectorHeader struct {
	Version   uint32
	Dimension uint32
	Count     uint32
}

// Save writes the vector file and its metadata into dir. Both are staged as temp
// files and renamed into place; on any failure the staged files are removed and
// a half-published vector file is taken back out.
func Save(dir string, idx *Index) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &domain.IndexBuildError{Reason: "write failed", Err: err}
	}

	vecTmp, err := writeTemp(dir, VectorFile, func(w io.Writer) error { return writeVectors(w, idx) })
	if err != nil {
		return &domain.IndexBuildError{Reason: "write failed", Err: err}
	}
	metaTmp, err := writeTemp(dir, MetadataFile, func(w io.Writer) error { return writeMetadata(w, idx) })
	if err != nil {
		os.Remove(vecTmp)
		return &domain.IndexBuildError{Reason: "write failed", Err: err}
	}

	vecPath := filepath.Join(dir, VectorFile)
	metaPath := filepath.Join(dir, MetadataFile)

	if err := os.Rename(vecTmp, vecPath); err != nil {
		os.Remove(vecTmp)
		os.Remove(metaTmp)
		return &domain.IndexBuildError{Reason: "write failed", Err: err}
	}
	if err := os.Rename(metaTmp, metaPath); err != nil {
		os.Remove(metaTmp)
		os.Remove(vecPath)
		return &domain.IndexBuildError{Reason: "write failed", Err: err}
	}
	return nil
}

func writeTemp(dir, name string, fill func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	path := f.Name()

	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func writeVectors(w io.Writer, idx *Index) error {
	if _, err := io.WriteString(w, vectorMagic); err != nil {
		return err
	}
	hdr := vectorHeader{
		Version:   vectorVersion,
		Dimension: uint32(idx.Dimension),
		Count:     uint32(idx.Size()),
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	if err := writeString(w, idx.BuildID); err != nil {
		return err
	}
	if err := writeString(w, idx.Model); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, idx.vectors)
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeMetadata(w io.Writer, idx *Index) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(metadataFile{
		BuildID:        idx.BuildID,
		EmbeddingModel: idx.Model,
		Dimension:      idx.Dimension,
		CorpusVersion:  idx.CorpusVersion,
		CorpusDigest:   idx.CorpusDigest,
		CreatedAt:      idx.CreatedAt,
		Count:          idx.Size(),
		Entries:        idx.entries,
	})
}

// Load reads the pair from dir. It returns domain.ErrIndexNotFound when either
// file is missing and ErrIndexCorrupt when they do not describe the same build.
func Load(dir string) (*Index, error) {
	vecPath := filepath.Join(dir, VectorFile)
	metaPath := filepath.Join(dir, MetadataFile)

	for _, p := range []string{vecPath, metaPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, domain.ErrIndexNotFound
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", metaPath, err)
	}
	var meta metadataFile
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %v", ErrIndexCorrupt, err)
	}

	f, err := os.Open(vecPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", vecPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", vecPath, err)
	}

	idx, err := readVectors(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	switch {
	case idx.BuildID != meta.BuildID:
		return nil, fmt.Errorf("%w: build id %s in vectors, %s in metadata", ErrIndexCorrupt, idx.BuildID, meta.BuildID)
	case idx.Model != meta.EmbeddingModel:
		return nil, fmt.Errorf("%w: model %q in vectors, %q in metadata", ErrIndexCorrupt, idx.Model, meta.EmbeddingModel)
	case idx.Dimension != meta.Dimension:
		return nil, fmt.Errorf("%w: dimension %d in vectors, %d in metadata", ErrIndexCorrupt, idx.Dimension, meta.Dimension)
	case len(meta.Entries) != meta.Count || len(idx.vectors) != len(meta.Entries)*idx.Dimension:
		return nil, fmt.Errorf("%w: %d metadata entries for %d vectors", ErrIndexCorrupt, len(meta.Entries), len(idx.vectors)/max(idx.Dimension, 1))
	}

	idx.CorpusVersion = meta.CorpusVersion
	idx.CorpusDigest = meta.CorpusDigest
	idx.CreatedAt = meta.CreatedAt
	idx.entries = meta.Entries
	return idx, nil
}

// readVectors decodes a vector file of size bytes. The header is checked against
// size before the vector slice is allocated.
func readVectors(r io.Reader, size int64) (*Index, error) {
	magic := make([]byte, len(vectorMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != vectorMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	var hdr vectorHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if hdr.Version != vectorVersion {
		return nil, fmt.Errorf("unsupported vector file version %d", hdr.Version)
	}

	buildID, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("reading build id: %w", err)
	}
	model, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}

	need := uint64(hdr.Count) * uint64(hdr.Dimension) * 4
	if size < 0 || need > uint64(size) {
		return nil, fmt.Errorf("header claims %d vectors of dimension %d but file holds %d bytes", hdr.Count, hdr.Dimension, size)
	}

	vectors := make([]float32, int(hdr.Count)*int(hdr.Dimension))
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}

	return &Index{
		BuildID:   buildID,
		Model:     model,
		Dimension: int(hdr.Dimension),
		vectors:   vectors,
	}, nil
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Exists reports whether both files of the pair are present in dir.
func Exists(dir string) bool {
	for _, name := range []string{VectorFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Ensure loads the index in dir, building and saving a fresh one when the pair
// is missing, torn or was built from different corpus content.
func Ensure(ctx context.Context, dir string, corpus domain.GuidelineCorpus, b *Builder) (*Index, error) {
	idx, err := Load(dir)
	switch {
	case err == nil:
		digest := b.Digest(corpus)
		if idx.CorpusVersion == corpus.Version && idx.CorpusDigest == digest {
			return idx, nil
		}
		b.logger.WithFields(logrus.Fields{
			"dir":            dir,
			"index_version":  idx.CorpusVersion,
			"corpus_version": corpus.Version,
		}).Warn("Index was built from a different corpus, rebuilding")
	case errors.Is(err, domain.ErrIndexNotFound), errors.Is(err, ErrIndexCorrupt):
		b.logger.WithError(err).WithField("dir", dir).Warn("No usable index on disk, rebuilding")
	default:
		return nil, err
	}

	return Rebuild(ctx, dir, corpus, b)
}

// Rebuild builds an index from corpus and replaces the pair in dir. Nothing is
// written when the build fails.
func Rebuild(ctx context.Context, dir string, corpus domain.GuidelineCorpus, b *Builder) (*Index, error) {
	idx, err := b.Build(ctx, corpus)
	if err != nil {
		return nil, err
	}
	if err := Save(dir, idx); err != nil {
		return nil, err
	}
	b.logger.WithFields(logrus.Fields{"dir": dir, "build_id": idx.BuildID}).Info("Index saved")
	return idx, nil
}
