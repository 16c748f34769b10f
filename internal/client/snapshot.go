package client

import (
	"context"
	"fmt"

	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/storage"
)

// SaveState keeps an in-memory snapshot in the engine.
func (c *PhysicsClient) SaveState(ctx context.Context) (dynamo.StateID, error) {
	var r channel.StateArgs
	if err := c.conn.Call(ctx, channel.CmdSaveState, nil, &r); err != nil {
		return 0, err
	}
	return dynamo.StateID(r.State), nil
}

// RestoreState rewinds the world. Restoring a removed snapshot is
// ErrUnknownHandle.
func (c *PhysicsClient) RestoreState(ctx context.Context, id dynamo.StateID) error {
	c.registry.Invalidate()
	return c.conn.Call(ctx, channel.CmdRestoreState, &channel.StateArgs{State: int(id)}, nil)
}

func (c *PhysicsClient) RemoveState(ctx context.Context, id dynamo.StateID) error {
	return c.conn.Call(ctx, channel.CmdRemoveState, &channel.StateArgs{State: int(id)}, nil)
}

func (c *PhysicsClient) exportState(ctx context.Context) (*channel.StateBlob, error) {
	var blob channel.StateBlob
	if err := c.conn.Call(ctx, channel.CmdExportState, nil, &blob); err != nil {
		return nil, err
	}
	return &blob, nil
}

// importState checks the engine version before sending the blob.
func (c *PhysicsClient) importState(ctx context.Context, version string, blob []byte) error {
	info, err := c.EngineInfo(ctx)
	if err != nil {
		return err
	}
	if version != info.Version {
		return fmt.Errorf("%w: snapshot from %q, engine is %q", dynamo.ErrIncompatibleSnapshot, version, info.Version)
	}
	c.registry.Invalidate()
	return c.conn.Call(ctx, channel.CmdImportState, &channel.StateBlob{EngineVersion: version, Blob: blob}, nil)
}

// SaveStateToFile writes the whole world to path.
func (c *PhysicsClient) SaveStateToFile(ctx context.Context, path string) error {
	blob, err := c.exportState(ctx)
	if err != nil {
		return err
	}
	return storage.WriteSnapshotFile(path, blob.EngineVersion, blob.Blob)
}

// RestoreStateFromFile loads a file written by SaveStateToFile. Damaged
// files are ErrCorruptSnapshot; files from another engine version are
// ErrIncompatibleSnapshot. Nothing is sent in either case.
func (c *PhysicsClient) RestoreStateFromFile(ctx context.Context, path string) error {
	blob, version, err := storage.ReadSnapshotFile(path, "")
	if err != nil {
		return err
	}
	return c.importState(ctx, version, blob)
}

// SaveSnapshot stores the world under name in st and returns the entry id.
func (c *PhysicsClient) SaveSnapshot(ctx context.Context, st *storage.Store, name string) (string, error) {
	blob, err := c.exportState(ctx)
	if err != nil {
		return "", err
	}
	p, err := c.PhysicsEngineParameters(ctx)
	if err != nil {
		return "", err
	}
	ids, err := c.Bodies(ctx)
	if err != nil {
		return "", err
	}
	bodies := make([]string, 0, len(ids))
	for _, id := range ids {
		e, err := c.entry(ctx, id)
		if err != nil {
			return "", err
		}
		bodies = append(bodies, e.Name)
	}
	return st.Save(name, blob.EngineVersion, p.Time, bodies, blob.Blob)
}

func (c *PhysicsClient) RestoreSnapshot(ctx context.Context, st *storage.Store, id string) error {
	meta, err := st.Load(id)
	if err != nil {
		return err
	}
	blob, err := st.LoadBlob(id, meta.EngineVersion)
	if err != nil {
		return err
	}
	return c.importState(ctx, meta.EngineVersion, blob)
}
