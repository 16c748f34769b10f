package refengine

import (
	"encoding/json"
	"fmt"

	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
)

const snapshotFormat = 1

// worldRecord is the serialized world. Models are stored whole so that
// ChangeDynamics edits survive a restore.
type worldRecord struct {
	Format   int                `json:"format"`
	Time     float64            `json:"time"`
	Params   channel.Parameters `json:"params"`
	NextBody int                `json:"next_body"`
	Bodies   []bodyRecord       `json:"bodies"`
}

type bodyRecord struct {
	ID             int        `json:"id"`
	Model          *Model     `json:"model"`
	Fixed          bool       `json:"fixed"`
	Base           [7]float64 `json:"base"`
	BaseVelocity   [6]float64 `json:"base_velocity"`
	Q              []float64  `json:"q"`
	U              []float64  `json:"u"`
	Motors         []motor    `json:"motors"`
	Torques        []float64  `json:"torques"`
	LinearDamping  float64    `json:"linear_damping"`
	AngularDamping float64    `json:"angular_damping"`
	StepHint       float64    `json:"step_hint,omitempty"`
}

func (w *world) encode() ([]byte, error) {
	rec := worldRecord{
		Format:   snapshotFormat,
		Time:     w.time,
		Params:   w.params,
		NextBody: w.nextBody,
	}
	for _, id := range w.ids() {
		b := w.bodies[id]
		rec.Bodies = append(rec.Bodies, bodyRecord{
			ID:             b.id,
			Model:          b.model,
			Fixed:          b.fixed,
			Base:           b.base.Array(),
			BaseVelocity:   b.baseVel.Array(),
			Q:              b.q,
			U:              b.u,
			Motors:         b.motors,
			Torques:        b.torques,
			LinearDamping:  b.linearDamping,
			AngularDamping: b.angularDamping,
		})
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("encode world: %w", err)
	}
	return data, nil
}

func decodeWorld(data []byte) (*world, error) {
	var rec worldRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrIncompatibleSnapshot, err)
	}
	if rec.Format != snapshotFormat {
		return nil, fmt.Errorf("%w: record format %d, want %d", dynamo.ErrIncompatibleSnapshot, rec.Format, snapshotFormat)
	}

	w := newWorld(rec.Params)
	w.time = rec.Time
	w.nextBody = rec.NextBody
	for _, br := range rec.Bodies {
		if br.Model == nil {
			return nil, fmt.Errorf("%w: body %d has no model", dynamo.ErrIncompatibleSnapshot, br.ID)
		}
		b := newBodyState(br.ID, br.Model, br.Fixed)
		if len(br.Q) != len(b.q) || len(br.U) != len(b.u) ||
			len(br.Motors) != len(b.motors) || len(br.Torques) != len(b.torques) {
			return nil, fmt.Errorf("%w: body %d state does not match its model", dynamo.ErrIncompatibleSnapshot, br.ID)
		}
		base, err := geom.PoseFromArray(br.Base[:])
		if err != nil {
			return nil, fmt.Errorf("%w: body %d: %v", dynamo.ErrIncompatibleSnapshot, br.ID, err)
		}
		// PoseFromArray renormalizes; keep the stored rotation exactly.
		base.Rotation = geom.QuatXYZW(br.Base[3], br.Base[4], br.Base[5], br.Base[6])
		b.base = base
		vel, _ := geom.VelocityFromArray(br.BaseVelocity[:])
		b.baseVel = vel
		copy(b.q, br.Q)
		copy(b.u, br.U)
		copy(b.motors, br.Motors)
		copy(b.torques, br.Torques)
		b.linearDamping = br.LinearDamping
		b.angularDamping = br.AngularDamping
		b.stepHint = br.StepHint
		w.bodies[b.id] = b
	}
	return w, nil
}
