package lode

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
)

// sidecarDir holds rendered WAV files inside a session partition.
const sidecarDir = "files"

// SidecarWriter stores opaque files next to the note records of a session.
// Sidecars bypass the dataset codec and manifests.
type SidecarWriter interface {
	// PutFile stores data under name. The name is a bare file name.
	PutFile(ctx context.Context, name, contentType string, data []byte) error
}

// PutFile stores a sidecar in the session partition. The content type is
// not persisted; FS and S3 stores keep raw bytes only.
func (c *LodeClient) PutFile(ctx context.Context, name, _ string, data []byte) error {
	if err := checkSidecarName(name); err != nil {
		return err
	}

	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	if c.storeErr != nil {
		return WrapInitError(fmt.Errorf("sidecar store: %w", c.storeErr), c.config.Dataset)
	}

	key := c.FilePath(name)
	if err := c.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, key)
	}
	return nil
}

// FilePath returns the store key of a sidecar:
// datasets/<dataset>/partitions/session=<s>/day=<d>/files/<name>.
func (c *LodeClient) FilePath(name string) string {
	return path.Join(
		"datasets", c.config.Dataset, "partitions",
		"session="+c.config.Session,
		"day="+c.config.Day,
		sidecarDir, name,
	)
}

func checkSidecarName(name string) error {
	switch {
	case name == "", name == ".", strings.Contains(name, ".."):
		return fmt.Errorf("invalid sidecar name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("sidecar name %q must not contain a path separator", name)
	}
	return nil
}
