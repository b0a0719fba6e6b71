// Package snapshot archives committed blocks and state-tree snapshots to
// object storage so a node can be rebuilt without replaying the full chain
// from a peer. Grounded on rechain/internal/cas/cas.go's minio-go chunking
// and content-addressing scheme, repurposed from a general content store
// into a block/state sink: objects are addressed by what they are
// (block/{height}, state/{height}) rather than by content hash alone, and
// metadata is stored as real JSON instead of the teacher's placeholder
// string encoding.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/artha-network/artha-core/internal/block"
	"github.com/artha-network/artha-core/pkg/merkle"
)

// defaultChunkSize matches the teacher's CAS chunk size: large snapshots are
// split so no single object exceeds it.
const defaultChunkSize = 4 << 20 // 4 MiB

// ObjectInfo is the metadata record stored alongside a chunked object.
type ObjectInfo struct {
	CID        string            `json:"cid"`
	Size       int64             `json:"size"`
	Chunks     []string          `json:"chunks"`
	MerkleRoot string            `json:"merkle_root"`
	Archived   time.Time         `json:"archived"`
	Metadata   map[string]string `json:"metadata"`
}

// Archive writes committed blocks and state snapshots to an S3-compatible
// object store (minio, or AWS S3 itself).
type Archive struct {
	client    *minio.Client
	bucket    string
	chunkSize int64
}

// NewArchive dials endpoint and ensures bucket exists, creating it if not.
func NewArchive(endpoint, accessKey, secretKey, bucket string, secure bool) (*Archive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to create object store client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("snapshot: failed to create bucket: %w", err)
		}
	}

	return &Archive{client: client, bucket: bucket, chunkSize: defaultChunkSize}, nil
}

// SaveBlock archives a committed block under block/{height}, chunked and
// content-addressed the same way any other object is.
func (a *Archive) SaveBlock(ctx context.Context, blk *block.Block) (string, error) {
	data, err := json.Marshal(blk)
	if err != nil {
		return "", fmt.Errorf("snapshot: failed to marshal block: %w", err)
	}
	key := fmt.Sprintf("block/%d", blk.Header.Height)
	return a.store(ctx, key, data, map[string]string{
		"kind":   "block",
		"height": fmt.Sprintf("%d", blk.Header.Height),
	})
}

// SaveStateSnapshot archives the full key/value contents of the state tree
// at a given height under state/{height}, alongside the root it reproduces
// so a restorer can verify it against the chain before trusting it.
func (a *Archive) SaveStateSnapshot(ctx context.Context, height uint64, tree *merkle.Tree) (string, error) {
	dump := make(map[string]string, tree.Len())
	root := tree.Root()
	for _, n := range tree.Export() {
		dump[hex.EncodeToString(n.Key)] = hex.EncodeToString(n.Value)
	}

	data, err := json.Marshal(dump)
	if err != nil {
		return "", fmt.Errorf("snapshot: failed to marshal state snapshot: %w", err)
	}
	key := fmt.Sprintf("state/%d", height)
	return a.store(ctx, key, data, map[string]string{
		"kind":        "state",
		"height":      fmt.Sprintf("%d", height),
		"state_root":  hex.EncodeToString(root[:]),
	})
}

// store chunks data, uploads each chunk plus a metadata record, and returns
// the object's content ID (the hash of the whole, unchunked payload).
func (a *Archive) store(ctx context.Context, key string, data []byte, meta map[string]string) (string, error) {
	cid := calculateCID(data)
	chunks := chunkData(data, a.chunkSize)

	chunkIDs := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		chunkCID := calculateCID(chunk)
		if _, err := a.client.PutObject(ctx, a.bucket, chunkObjectKey(cid, i), bytes.NewReader(chunk), int64(len(chunk)), minio.PutObjectOptions{}); err != nil {
			return "", fmt.Errorf("snapshot: failed to upload chunk %d of %s: %w", i, key, err)
		}
		chunkIDs = append(chunkIDs, chunkCID)
	}

	info := ObjectInfo{
		CID:        cid,
		Size:       int64(len(data)),
		Chunks:     chunkIDs,
		MerkleRoot: hex.EncodeToString(computeMerkleRoot(chunks)[:]),
		Archived:   time.Now().UTC(),
		Metadata:   meta,
	}
	infoBytes, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("snapshot: failed to marshal object info: %w", err)
	}
	if _, err := a.client.PutObject(ctx, a.bucket, metadataObjectKey(key), bytes.NewReader(infoBytes), int64(len(infoBytes)), minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("snapshot: failed to upload metadata for %s: %w", key, err)
	}
	// Record a pointer from the logical key (block/123) to the content ID so
	// Load can find it without the caller tracking CIDs itself.
	if _, err := a.client.PutObject(ctx, a.bucket, pointerObjectKey(key), bytes.NewReader([]byte(cid)), int64(len(cid)), minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("snapshot: failed to upload pointer for %s: %w", key, err)
	}

	return cid, nil
}

// Load retrieves and reassembles the object stored under the logical key
// (block/{height} or state/{height}).
func (a *Archive) Load(ctx context.Context, key string) ([]byte, error) {
	ptr, err := a.client.GetObject(ctx, a.bucket, pointerObjectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to locate %s: %w", key, err)
	}
	cidBytes, err := io.ReadAll(ptr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to read pointer for %s: %w", key, err)
	}
	cid := string(cidBytes)

	info, err := a.GetInfo(ctx, key, cid)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for i := range info.Chunks {
		obj, err := a.client.GetObject(ctx, a.bucket, chunkObjectKey(cid, i), minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("snapshot: failed to fetch chunk %d of %s: %w", i, key, err)
		}
		if _, err := io.Copy(&buf, obj); err != nil {
			return nil, fmt.Errorf("snapshot: failed to read chunk %d of %s: %w", i, key, err)
		}
	}
	return buf.Bytes(), nil
}

// GetInfo returns the stored metadata record for a logical key. Unlike the
// teacher's CAS.GetInfo, this actually unmarshals the JSON it wrote rather
// than the placeholder string format that made the teacher's version
// unparsable by construction.
func (a *Archive) GetInfo(ctx context.Context, key, cid string) (*ObjectInfo, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, metadataObjectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to fetch metadata for %s: %w", key, err)
	}
	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to read metadata for %s: %w", key, err)
	}
	var info ObjectInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("snapshot: failed to parse metadata for %s: %w", key, err)
	}
	return &info, nil
}

// List returns the logical keys (block/{height}, state/{height}) archived
// under prefix, by listing the pointer namespace rather than the chunk or
// metadata namespaces.
func (a *Archive) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: "pointers/" + prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("snapshot: failed to list objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key[len("pointers/"):])
	}
	return keys, nil
}

func calculateCID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func chunkData(data []byte, size int64) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for int64(len(data)) > size {
		chunks = append(chunks, data[:size])
		data = data[size:]
	}
	chunks = append(chunks, data)
	return chunks
}

// computeMerkleRoot is a standalone pairwise reduction over chunk hashes,
// kept separate from pkg/merkle: that tree is keyed and versioned for live
// state, while this is a one-shot root over a fixed chunk list.
func computeMerkleRoot(chunks [][]byte) [32]byte {
	if len(chunks) == 0 {
		return [32]byte{}
	}
	level := make([][32]byte, len(chunks))
	for i, c := range chunks {
		level[i] = sha256.Sum256(c)
	}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			combined := append(append([]byte(nil), left[:]...), right[:]...)
			next = append(next, sha256.Sum256(combined))
		}
		level = next
	}
	return level[0]
}

func chunkObjectKey(cid string, index int) string {
	return fmt.Sprintf("chunks/%s/%d", cid, index)
}

func metadataObjectKey(key string) string {
	return fmt.Sprintf("metadata/%s.json", key)
}

func pointerObjectKey(key string) string {
	return fmt.Sprintf("pointers/%s", key)
}
