// Package compression defines the job config handed to the downstream
// compression engine and its wire encoding. The persisted form is
// MessagePack with named maps, entropy-coded with Brotli; the engine is
// the sole consumer of these bytes, so field names and order are a shared
// contract and must not change.
package compression

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/andybalholm/brotli"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yscope/log-ingestor/internal/model"
)

// Output sizing applied to every submitted job.
const (
	DefaultCompressionLevel       uint8  = 3
	DefaultTargetArchiveSize      uint64 = 268_435_456
	DefaultTargetDictionariesSize uint64 = 33_554_432
	DefaultTargetEncodedFileSize  uint64 = 268_435_456
	DefaultTargetSegmentSize      uint64 = 268_435_456
)

const (
	brotliQuality = 5
	brotliLgWin   = 22
)

// AuthTypeCredentials tags AwsAuthentication as a static key pair.
const AuthTypeCredentials = "credentials"

// JobConfig describes one compression job: which objects to read and how
// to size the produced archives.
type JobConfig struct {
	Input  InputConfig  `msgpack:"input"`
	Output OutputConfig `msgpack:"output"`
}

// InputConfig selects the objects the engine should ingest. When Keys is
// present the engine reads exactly those objects; otherwise it scans the
// whole key prefix.
type InputConfig struct {
	AwsAuthentication AwsAuthentication `msgpack:"aws_authentication"`
	Bucket            string            `msgpack:"bucket"`
	Dataset           string            `msgpack:"dataset"`
	KeyPrefix         string            `msgpack:"key_prefix"`
	RegionCode        string            `msgpack:"region_code"`
	Keys              []string          `msgpack:"keys,omitempty"`
}

// AwsAuthentication is a tagged union; Type discriminates the variant.
type AwsAuthentication struct {
	Type        string         `msgpack:"type"`
	Credentials AwsCredentials `msgpack:"credentials"`
}

// AwsCredentials is a static access key pair.
type AwsCredentials struct {
	AccessKeyID     string `msgpack:"access_key_id"`
	SecretAccessKey string `msgpack:"secret_access_key"`
}

// OutputConfig sizes the archives the engine produces.
type OutputConfig struct {
	CompressionLevel       uint8  `msgpack:"compression_level"`
	TargetArchiveSize      uint64 `msgpack:"target_archive_size"`
	TargetDictionariesSize uint64 `msgpack:"target_dictionaries_size"`
	TargetEncodedFileSize  uint64 `msgpack:"target_encoded_file_size"`
	TargetSegmentSize      uint64 `msgpack:"target_segment_size"`
}

// NewJobConfig builds a job config for the given input selection with the
// standard output sizing. An empty dataset maps to "default" on the wire.
func NewJobConfig(creds model.Credentials, bucket, dataset, keyPrefix, regionCode string, keys []string) JobConfig {
	if dataset == "" {
		dataset = "default"
	}
	return JobConfig{
		Input: InputConfig{
			AwsAuthentication: AwsAuthentication{
				Type: AuthTypeCredentials,
				Credentials: AwsCredentials{
					AccessKeyID:     creds.AccessKeyID,
					SecretAccessKey: creds.SecretAccessKey,
				},
			},
			Bucket:     bucket,
			Dataset:    dataset,
			KeyPrefix:  keyPrefix,
			RegionCode: regionCode,
			Keys:       keys,
		},
		Output: OutputConfig{
			CompressionLevel:       DefaultCompressionLevel,
			TargetArchiveSize:      DefaultTargetArchiveSize,
			TargetDictionariesSize: DefaultTargetDictionariesSize,
			TargetEncodedFileSize:  DefaultTargetEncodedFileSize,
			TargetSegmentSize:      DefaultTargetSegmentSize,
		},
	}
}

// Encode serialises the config to named-map MessagePack and compresses the
// result with Brotli. The output is deterministic for equal inputs.
func (c JobConfig) Encode() ([]byte, error) {
	payload, err := msgpack.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	var buf bytes.Buffer
	w := brotli.NewWriterOptions(&buf, brotli.WriterOptions{
		Quality: brotliQuality,
		LGWin:   brotliLgWin,
	})
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeHex returns the hex form of Encode, for diagnostics and tests.
func (c JobConfig) EncodeHex() (string, error) {
	raw, err := c.Encode()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
