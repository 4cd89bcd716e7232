// Package fingerprint derives a ModelIdentity from a path on disk using a
// config-based fingerprint and a weight-file checksum, combined into a
// 16-hex-char identity_hash.
package fingerprint

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/aman-cerp/chunkcore/internal/coreerrors"
	"github.com/aman-cerp/chunkcore/internal/coremodel"
)

const (
	chunkSize        = 8 << 20        // 8 MiB streaming read, mirrors chunk_size=8192*1024
	partialThreshold = 10 << 30       // 10 GiB
	sampleSize       = 64 << 20       // 64 MiB samples
	checksumPrefix   = "partial_"
)

// recognizedConfigKeys is the fixed iteration order for the config
// fingerprint's architecture-defining fields. Order only matters for
// determinism of the intermediate map construction; json.Marshal on a
// map[string]any sorts keys lexicographically regardless, matching
// Python's json.dumps(..., sort_keys=True) byte-for-byte for ASCII keys.
var recognizedConfigKeys = []string{
	"model_type", "architectures", "vocab_size", "hidden_size",
	"num_hidden_layers", "num_attention_heads", "intermediate_size",
	"max_position_embeddings", "num_key_value_heads",
}

var weightFileGlobs = []string{"*.safetensors", "*.bin", "*.gguf", "*.ggml", "*.pt"}

type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

// Fingerprinter computes ModelIdentity values, caching file checksums by
// (path, size, modTime) and deduping concurrent computations for the same
// path via singleflight.
type Fingerprinter struct {
	cache  *lru.Cache[cacheKey, string]
	flight singleflight.Group
}

// New returns a Fingerprinter with a checksum cache sized cacheSize.
func New(cacheSize int) (*Fingerprinter, error) {
	c, err := lru.New[cacheKey, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint cache: %w", err)
	}
	return &Fingerprinter{cache: c}, nil
}

// Identify builds a ModelIdentity for modelPath from config.json (inside
// modelPath when it is a directory, beside it when it is a file), the
// largest recognized weight file, and the path's base name. The raw path is
// hashed only when none of those components is present.
func (f *Fingerprinter) Identify(modelPath string) (coremodel.ModelIdentity, error) {
	identity := coremodel.ModelIdentity{
		Path: modelPath,
		Name: filepath.Base(modelPath),
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return coremodel.ModelIdentity{}, coreerrors.New(coreerrors.ErrCodeWeightFileUnreadable,
			fmt.Sprintf("cannot stat model path %s", modelPath), err)
	}

	if cfgPath, ok := findConfigPath(modelPath, info.IsDir()); ok {
		if fp, modelType, arch, err := f.configFingerprint(cfgPath); err == nil {
			identity.ConfigFingerprint = &fp
			if modelType != "" {
				identity.ModelType = &modelType
			}
			if arch != "" {
				identity.Architecture = &arch
			}
		}
	}

	if weightPath, size, ok := findLargestWeightFile(modelPath, info); ok {
		checksum, err := f.fileChecksum(weightPath, size)
		if err != nil {
			return coremodel.ModelIdentity{}, err
		}
		identity.FileChecksum = &checksum
		identity.FileSize = &size
	}

	identity.IdentityHash = combineIdentity(identity)
	return identity, nil
}

// combineIdentity joins the present signals in order
// config_fingerprint|file_checksum|file_size|name and hashes them to 16 hex
// chars, falling back to hashing the raw path when nothing is present.
func combineIdentity(identity coremodel.ModelIdentity) string {
	var components []string
	if identity.ConfigFingerprint != nil && *identity.ConfigFingerprint != "" {
		components = append(components, *identity.ConfigFingerprint)
	}
	if identity.FileChecksum != nil && *identity.FileChecksum != "" {
		components = append(components, *identity.FileChecksum)
	}
	if identity.FileSize != nil && *identity.FileSize != 0 {
		components = append(components, fmt.Sprintf("%d", *identity.FileSize))
	}
	if identity.Name != "" {
		components = append(components, identity.Name)
	}

	if len(components) == 0 {
		return hashHex(identity.Path)[:16]
	}

	joined := ""
	for i, c := range components {
		if i > 0 {
			joined += "|"
		}
		joined += c
	}
	return hashHex(joined)[:16]
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func findConfigPath(modelPath string, isDir bool) (string, bool) {
	var candidates []string
	if isDir {
		candidates = append(candidates, filepath.Join(modelPath, "config.json"))
	} else {
		candidates = append(candidates, filepath.Join(filepath.Dir(modelPath), "config.json"))
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c, true
		}
	}
	return "", false
}

// configFingerprint reads configPath and computes the 32-hex-char digest
// over the recognized architecture-defining fields.
func (f *Fingerprinter) configFingerprint(configPath string) (fingerprint, modelType, architecture string, err error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", "", "", err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", "", "", err
	}

	subset := make(map[string]any, len(recognizedConfigKeys))
	for _, key := range recognizedConfigKeys {
		if v, ok := raw[key]; ok {
			subset[key] = v
		}
	}

	encoded, err := json.Marshal(subset)
	if err != nil {
		return "", "", "", err
	}
	fingerprint = hashHex(string(encoded))[:32]

	if mt, ok := raw["model_type"].(string); ok {
		modelType = mt
	}
	if archs, ok := raw["architectures"].([]any); ok && len(archs) > 0 {
		if s, ok := archs[0].(string); ok {
			architecture = s
		}
	}

	return fingerprint, modelType, architecture, nil
}

// findLargestWeightFile returns the largest file matching weightFileGlobs,
// or modelPath itself when it is already a file.
func findLargestWeightFile(modelPath string, info os.FileInfo) (string, int64, bool) {
	if !info.IsDir() {
		return modelPath, info.Size(), true
	}

	var bestPath string
	var bestSize int64
	for _, pattern := range weightFileGlobs {
		matches, err := filepath.Glob(filepath.Join(modelPath, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			st, err := os.Stat(m)
			if err != nil || st.IsDir() {
				continue
			}
			if st.Size() > bestSize || bestPath == "" {
				bestPath = m
				bestSize = st.Size()
			}
		}
	}
	if bestPath == "" {
		return "", 0, false
	}
	return bestPath, bestSize, true
}

// fileChecksum returns the SHA-256 checksum of path, consulting the cache
// and deduping concurrent callers for the same path via singleflight.
func (f *Fingerprinter) fileChecksum(path string, size int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", coreerrors.New(coreerrors.ErrCodeWeightFileUnreadable,
			fmt.Sprintf("cannot stat weight file %s", path), err)
	}

	key := cacheKey{path: path, size: size, modTime: info.ModTime().UnixNano()}
	if v, ok := f.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := f.flight.Do(path, func() (any, error) {
		if v, ok := f.cache.Get(key); ok {
			return v, nil
		}
		sum, err := computeChecksum(path, size)
		if err != nil {
			return nil, err
		}
		f.cache.Add(key, sum)
		return sum, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func computeChecksum(path string, size int64) (string, error) {
	if size > partialThreshold {
		return computePartialChecksum(path, size)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", coreerrors.New(coreerrors.ErrCodeWeightFileUnreadable,
			fmt.Sprintf("cannot open weight file %s", path), err)
	}
	defer f.Close()

	h := sha256.New()
	r := bufio.NewReaderSize(f, chunkSize)
	if _, err := io.Copy(h, r); err != nil {
		return "", coreerrors.New(coreerrors.ErrCodeWeightFileUnreadable,
			fmt.Sprintf("failed reading weight file %s", path), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// computePartialChecksum samples the first, middle, and last 64 MiB windows
// of a file larger than 10 GiB plus its decimal size, prefixed "partial_",
// mirroring _compute_partial_checksum.
func computePartialChecksum(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", coreerrors.New(coreerrors.ErrCodeWeightFileUnreadable,
			fmt.Sprintf("cannot open weight file %s", path), err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, sampleSize)

	readAt := func(offset int64) error {
		n, err := f.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return err
		}
		h.Write(buf[:n])
		return nil
	}

	if err := readAt(0); err != nil {
		return "", coreerrors.New(coreerrors.ErrCodeWeightFileUnreadable, "failed reading start sample", err)
	}
	if err := readAt(size / 2); err != nil {
		return "", coreerrors.New(coreerrors.ErrCodeWeightFileUnreadable, "failed reading middle sample", err)
	}
	endOffset := size - sampleSize
	if endOffset < 0 {
		endOffset = 0
	}
	if err := readAt(endOffset); err != nil {
		return "", coreerrors.New(coreerrors.ErrCodeWeightFileUnreadable, "failed reading end sample", err)
	}

	fmt.Fprintf(h, "%d", size)
	return checksumPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
