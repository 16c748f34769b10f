package client_test

import (
	"context"
	"math"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/physlink/internal/client"
	"github.com/san-kum/physlink/internal/config"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/storage"
)

const armLink = 3

var _ = Describe("PhysicsClient", func() {
	for _, tc := range transports {
		tc := tc

		Context("over "+tc.name, func() {
			var (
				ctx context.Context
				c   *client.PhysicsClient
				arm dynamo.BodyID
			)

			BeforeEach(func() {
				ctx = context.Background()
				c = tc.connect()
				DeferCleanup(c.Close)

				var err error
				arm, err = c.LoadModel(ctx, "two_joint_arm", client.LoadOptions{FixedBase: true})
				Expect(err).NotTo(HaveOccurred())
			})

			setArm := func(q, qd []float64) {
				Expect(c.ResetJointState(ctx, arm, 0, q[0], qd[0])).To(Succeed())
				Expect(c.ResetJointState(ctx, arm, 3, q[1], qd[1])).To(Succeed())
			}

			Describe("body metadata", func() {
				It("resolves joint indices around fixed joints", func() {
					e, err := c.BodyInfo(ctx, arm)
					Expect(err).NotTo(HaveOccurred())
					Expect(e.NumJoints()).To(Equal(4))
					for j, want := range []int{0, -1, -1, 1} {
						q, _ := e.Index.QIndex(j)
						u, _ := e.Index.UIndex(j)
						Expect(q).To(Equal(want))
						Expect(u).To(Equal(want))
					}
					Expect(e.Index.NumDOF()).To(Equal(2))
				})

				It("offsets floating-base indices past the base block", func() {
					rover, err := c.LoadModel(ctx, "rover", client.LoadOptions{})
					Expect(err).NotTo(HaveOccurred())
					info, err := c.JointInfo(ctx, rover, 2)
					Expect(err).NotTo(HaveOccurred())
					Expect(info.QIndex).To(Equal(7))
					Expect(info.UIndex).To(Equal(6))

					q := []float64{0, 0}
					j, err := c.Jacobian(ctx, rover, 2, mgl64.Vec3{}, q, q, q)
					Expect(err).NotTo(HaveOccurred())
					_, cols := j.Linear.Dims()
					Expect(cols).To(Equal(2))
				})

				It("lists and removes bodies", func() {
					n, err := c.NumBodies(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(n).To(Equal(1))

					Expect(c.RemoveBody(ctx, arm)).To(Succeed())
					_, err = c.JointStates(ctx, arm, []int{0})
					Expect(err).To(MatchError(dynamo.ErrUnknownHandle))
					Expect(c.RemoveBody(ctx, arm)).To(MatchError(dynamo.ErrUnknownHandle))
				})

				It("never hands out a stale handle again after a reset", func() {
					Expect(c.ResetSimulation(ctx)).To(Succeed())
					cube, err := c.LoadModel(ctx, "cube", client.LoadOptions{})
					Expect(err).NotTo(HaveOccurred())
					Expect(cube).NotTo(Equal(arm))

					_, err = c.BodyInfo(ctx, arm)
					Expect(err).To(MatchError(dynamo.ErrUnknownHandle))
					e, err := c.BodyInfo(ctx, cube)
					Expect(err).NotTo(HaveOccurred())
					Expect(e.Name).To(Equal("cube"))
				})
			})

			Describe("Jacobian", func() {
				q := []float64{0.3, -0.5}
				qd := []float64{0.7, 0.2}
				zero := []float64{0, 0}

				It("is 3 x N and maps qdot to the link velocity", func() {
					setArm(q, qd)
					j, err := c.Jacobian(ctx, arm, armLink, mgl64.Vec3{}, q, qd, zero)
					Expect(err).NotTo(HaveOccurred())
					rows, cols := j.Linear.Dims()
					Expect([]int{rows, cols}).To(Equal([]int{3, 2}))

					v, err := j.Velocity(qd)
					Expect(err).NotTo(HaveOccurred())
					st, err := c.LinkState(ctx, arm, armLink, true, true)
					Expect(err).NotTo(HaveOccurred())
					Expect(st.Velocity).NotTo(BeNil())
					Expect(v.ApproxEqual(*st.Velocity, 1e-6)).To(BeTrue(), "J qdot %v, link velocity %v", v, *st.Velocity)
				})

				It("matches a central finite difference of link positions", func() {
					const h = 1e-5
					j, err := c.Jacobian(ctx, arm, armLink, mgl64.Vec3{}, q, qd, zero)
					Expect(err).NotTo(HaveOccurred())
					v, err := j.Velocity(qd)
					Expect(err).NotTo(HaveOccurred())

					position := func(sign float64) mgl64.Vec3 {
						setArm([]float64{q[0] + sign*h*qd[0], q[1] + sign*h*qd[1]}, zero)
						st, err := c.LinkState(ctx, arm, armLink, false, true)
						Expect(err).NotTo(HaveOccurred())
						return st.WorldPose.Translation
					}
					fd := position(1).Sub(position(-1)).Mul(1 / (2 * h))
					Expect(v.Linear.ApproxEqualThreshold(fd, 1e-6)).To(BeTrue(), "J qdot %v, finite difference %v", v.Linear, fd)
				})

				It("matches the finite difference of consecutive link states after a step", func() {
					const dt = 0.001
					Expect(c.SetTimeStep(ctx, dt)).To(Succeed())
					setArm([]float64{0.1, 0.1}, []float64{0.2, 0.3})
					_, err := c.StepSimulation(ctx, 1)
					Expect(err).NotTo(HaveOccurred())

					st, err := c.LinkState(ctx, arm, armLink, false, true)
					Expect(err).NotTo(HaveOccurred())
					local := st.LocalInertialPose.Translation
					Expect(local.Len()).To(BeNumerically(">", 0))

					// World position of the point and J qdot at the current state.
					sample := func() (mgl64.Vec3, mgl64.Vec3) {
						st, err := c.LinkState(ctx, arm, armLink, false, true)
						Expect(err).NotTo(HaveOccurred())
						states, err := c.MovableJointStates(ctx, arm)
						Expect(err).NotTo(HaveOccurred())
						pos, vel := make([]float64, len(states)), make([]float64, len(states))
						for i, js := range states {
							pos[i], vel[i] = js.Position, js.Velocity
						}
						j, err := c.Jacobian(ctx, arm, armLink, local, pos, zero, zero)
						Expect(err).NotTo(HaveOccurred())
						v, err := j.Velocity(vel)
						Expect(err).NotTo(HaveOccurred())
						return st.WorldPose.Apply(local), v.Linear
					}

					p0, v0 := sample()
					_, err = c.StepSimulation(ctx, 1)
					Expect(err).NotTo(HaveOccurred())
					p1, v1 := sample()

					fd := p1.Sub(p0).Mul(1 / dt)
					mid := v0.Add(v1).Mul(0.5)
					Expect(fd.Len()).To(BeNumerically(">", 0.1))
					Expect(mid.ApproxEqualThreshold(fd, 1e-6)).To(BeTrue(), "J qdot %v, finite difference %v", mid, fd)
				})

				It("validates locally", func() {
					_, err := c.Jacobian(ctx, arm, 4, mgl64.Vec3{}, q, qd, zero)
					Expect(err).To(MatchError(dynamo.ErrIndexOutOfRange))
					_, err = c.Jacobian(ctx, arm, -1, mgl64.Vec3{}, q, qd, zero)
					Expect(err).To(MatchError(dynamo.ErrIndexOutOfRange))
					_, err = c.Jacobian(ctx, arm, armLink, mgl64.Vec3{}, []float64{0, 0, 0, 0}, qd, zero)
					Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
				})
			})

			Describe("dynamics", func() {
				It("returns a symmetric mass matrix", func() {
					dp, err := c.LoadModel(ctx, "double_pendulum", client.LoadOptions{FixedBase: true})
					Expect(err).NotTo(HaveOccurred())
					m, err := c.MassMatrix(ctx, dp, []float64{0.4, 1.1})
					Expect(err).NotTo(HaveOccurred())
					r, cols := m.Dims()
					Expect(r).To(Equal(2))
					Expect(cols).To(Equal(2))
					Expect(math.Abs(m.At(0, 1) - m.At(1, 0))).To(BeNumerically("<", 1e-9))
					Expect(m.At(0, 0)).To(BeNumerically(">", 0))
				})

				It("computes inverse dynamics against gravity", func() {
					pend, err := c.LoadModel(ctx, "pendulum", client.LoadOptions{FixedBase: true})
					Expect(err).NotTo(HaveOccurred())
					Expect(c.SetGravity(ctx, mgl64.Vec3{0, 0, -9.81})).To(Succeed())

					tau, err := c.InverseDynamics(ctx, pend, []float64{0.5}, []float64{0}, []float64{0})
					Expect(err).NotTo(HaveOccurred())
					Expect(tau).To(HaveLen(1))
					Expect(tau[0]).To(BeNumerically("~", 9.81*math.Sin(0.5), 1e-9))
				})

				It("solves inverse kinematics without touching the world", func() {
					target := mgl64.Vec3{math.Cos(0.4), math.Sin(0.4), 0.125}
					orient := geom.QuatAxisAngle(mgl64.Vec3{0, 0, 1}, 1.0)
					res, err := c.InverseKinematics(ctx, arm, client.IKOptions{
						EndEffector:   armLink,
						Target:        target,
						Orientation:   &orient,
						MaxIterations: 100,
					})
					Expect(err).NotTo(HaveOccurred())
					Expect(res.Converged).To(BeTrue())
					Expect(res.Positions).To(HaveLen(4))
					Expect(res.Positions[1]).To(Equal(0.0))
					Expect(res.Positions[0]).To(BeNumerically("~", 0.4, 1e-3))
					Expect(res.Positions[3]).To(BeNumerically("~", 0.6, 1e-3))
					Expect(res.DOF).To(HaveLen(2))

					states, err := c.MovableJointStates(ctx, arm)
					Expect(err).NotTo(HaveOccurred())
					Expect(states[0].Position).To(Equal(0.0))
				})

				It("reports non-convergence without failing", func() {
					res, err := c.InverseKinematics(ctx, arm, client.IKOptions{
						EndEffector: armLink,
						Target:      mgl64.Vec3{10, 10, 10},
					})
					Expect(err).NotTo(HaveOccurred())
					Expect(res.Converged).To(BeFalse())
					Expect(res.Residual).To(BeNumerically(">", 1))
				})

				It("rejects null space vectors of the wrong length", func() {
					_, err := c.InverseKinematics(ctx, arm, client.IKOptions{
						EndEffector: armLink,
						NullSpace: &client.NullSpace{
							Lower:  []float64{-1, -1},
							Upper:  []float64{1, 1},
							Ranges: []float64{2},
							Rest:   []float64{0, 0},
						},
					})
					Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
				})
			})

			Describe("link states", func() {
				BeforeEach(func() {
					setArm([]float64{0.2, 0.9}, []float64{-0.4, 1.3})
				})

				It("rejects indices past the last link", func() {
					_, err := c.LinkState(ctx, arm, 4, false, false)
					Expect(err).To(MatchError(dynamo.ErrIndexOutOfRange))
				})

				It("leaves velocity nil unless requested", func() {
					st, err := c.LinkState(ctx, arm, 0, false, false)
					Expect(err).NotTo(HaveOccurred())
					Expect(st.Velocity).To(BeNil())
				})

				It("returns batches identical to single calls", func() {
					links := []int{3, 0, 2}
					batch, err := c.LinkStates(ctx, arm, links, true, true)
					Expect(err).NotTo(HaveOccurred())
					Expect(batch).To(HaveLen(3))
					for i, l := range links {
						single, err := c.LinkState(ctx, arm, l, true, true)
						Expect(err).NotTo(HaveOccurred())
						Expect(batch[i]).To(Equal(single))
					}
				})

				It("relates the link frame and the inertial frame", func() {
					st, err := c.LinkState(ctx, arm, armLink, false, true)
					Expect(err).NotTo(HaveOccurred())
					frame := st.WorldPose.Mul(st.LocalInertialPose.Inverse())
					Expect(frame.ApproxEqual(st.WorldLinkFramePose, 1e-12)).To(BeTrue())
				})
			})

			Describe("joints and motors", func() {
				It("drives a joint to a position target", func() {
					Expect(c.SetJointMotorControl(ctx, arm, 0, client.MotorCommand{
						Mode:           client.ControlPosition,
						TargetPosition: 0.5,
					})).To(Succeed())
					_, err := c.StepSimulation(ctx, 960)
					Expect(err).NotTo(HaveOccurred())
					st, err := c.JointState(ctx, arm, 0)
					Expect(err).NotTo(HaveOccurred())
					Expect(st.Position).To(BeNumerically("~", 0.5, 1e-3))
				})

				It("checks motor arrays before sending", func() {
					err := c.SetJointMotorControlArray(ctx, arm, client.MotorArrayCommand{
						Mode:            client.ControlVelocity,
						Joints:          []int{0, 3},
						TargetPositions: []float64{1},
					})
					Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))

					err = c.SetJointMotorControlArray(ctx, arm, client.MotorArrayCommand{
						Mode:   client.ControlTorque,
						Joints: []int{0, 7},
						Forces: []float64{1, 1},
					})
					Expect(err).To(MatchError(dynamo.ErrIndexOutOfRange))
				})
			})

			Describe("engine parameters", func() {
				It("updates only the fields that are set", func() {
					Expect(c.SetTimeStep(ctx, 0.01)).To(Succeed())
					p, err := c.PhysicsEngineParameters(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(p.TimeStep).To(Equal(0.01))
					Expect(p.Integrator).To(Equal("rk4"))

					t, err := c.StepSimulation(ctx, 3)
					Expect(err).NotTo(HaveOccurred())
					Expect(t).To(BeNumerically("~", 0.03, 1e-12))
				})

				It("rejects a non-positive time step", func() {
					Expect(c.SetTimeStep(ctx, 0)).To(MatchError(dynamo.ErrInvalidArgument))
				})

				It("rejects a non-positive step count without stepping", func() {
					for _, n := range []int{0, -3} {
						_, err := c.StepSimulation(ctx, n)
						Expect(err).To(MatchError(dynamo.ErrInvalidArgument))
					}
					p, err := c.PhysicsEngineParameters(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(p.Time).To(BeZero())
				})
			})

			Describe("snapshots", func() {
				var cube dynamo.BodyID

				BeforeEach(func() {
					var err error
					cube, err = c.LoadModel(ctx, "cube", client.LoadOptions{})
					Expect(err).NotTo(HaveOccurred())
				})

				It("restores a moved base to where it was saved", func() {
					id, err := c.SaveState(ctx)
					Expect(err).NotTo(HaveOccurred())

					Expect(c.ResetBaseTransform(ctx, cube, geom.Translation(1, 1, 1))).To(Succeed())
					moved, err := c.BaseTransform(ctx, cube)
					Expect(err).NotTo(HaveOccurred())
					Expect(moved.Translation).To(Equal(mgl64.Vec3{1, 1, 1}))

					Expect(c.RestoreState(ctx, id)).To(Succeed())
					pose, err := c.BaseTransform(ctx, cube)
					Expect(err).NotTo(HaveOccurred())
					Expect(pose.ApproxEqual(geom.Identity(), 1e-10)).To(BeTrue(), "restored pose %v", pose)
				})

				It("round-trips a stepped world", func() {
					Expect(c.SetGravity(ctx, mgl64.Vec3{0, 0, -9.81})).To(Succeed())
					setArm([]float64{0.1, 0.2}, []float64{1, -1})
					_, err := c.StepSimulation(ctx, 20)
					Expect(err).NotTo(HaveOccurred())

					before, err := c.MovableJointStates(ctx, arm)
					Expect(err).NotTo(HaveOccurred())
					base, err := c.BaseTransform(ctx, cube)
					Expect(err).NotTo(HaveOccurred())
					id, err := c.SaveState(ctx)
					Expect(err).NotTo(HaveOccurred())

					_, err = c.StepSimulation(ctx, 20)
					Expect(err).NotTo(HaveOccurred())
					Expect(c.RestoreState(ctx, id)).To(Succeed())

					after, err := c.MovableJointStates(ctx, arm)
					Expect(err).NotTo(HaveOccurred())
					for i := range before {
						Expect(after[i].Position).To(BeNumerically("~", before[i].Position, 1e-10))
						Expect(after[i].Velocity).To(BeNumerically("~", before[i].Velocity, 1e-10))
					}
					restored, err := c.BaseTransform(ctx, cube)
					Expect(err).NotTo(HaveOccurred())
					Expect(restored.ApproxEqual(base, 1e-10)).To(BeTrue())
				})

				It("forgets removed snapshots", func() {
					id, err := c.SaveState(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(c.RemoveState(ctx, id)).To(Succeed())
					Expect(c.RestoreState(ctx, id)).To(MatchError(dynamo.ErrUnknownHandle))
				})

				It("writes and reads snapshot files", func() {
					path := filepath.Join(GinkgoT().TempDir(), "world.snap")
					Expect(c.SaveStateToFile(ctx, path)).To(Succeed())
					Expect(c.ResetBaseTransform(ctx, cube, geom.Translation(1, 1, 1))).To(Succeed())
					Expect(c.RestoreStateFromFile(ctx, path)).To(Succeed())

					pose, err := c.BaseTransform(ctx, cube)
					Expect(err).NotTo(HaveOccurred())
					Expect(pose.ApproxEqual(geom.Identity(), 1e-10)).To(BeTrue())
				})

				It("refuses files from another engine version", func() {
					path := filepath.Join(GinkgoT().TempDir(), "old.snap")
					Expect(storage.WriteSnapshotFile(path, "refengine/0", []byte("{}"))).To(Succeed())
					Expect(c.RestoreStateFromFile(ctx, path)).To(MatchError(dynamo.ErrIncompatibleSnapshot))
				})

				It("refuses damaged files", func() {
					path := filepath.Join(GinkgoT().TempDir(), "bad.snap")
					Expect(os.WriteFile(path, []byte("PLSN\x00\x01garbage"), 0644)).To(Succeed())
					Expect(c.RestoreStateFromFile(ctx, path)).To(MatchError(dynamo.ErrCorruptSnapshot))
				})

				It("drops cached metadata on restore", func() {
					id, err := c.SaveState(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(c.Registry().Len()).To(Equal(2))
					Expect(c.RestoreState(ctx, id)).To(Succeed())
					Expect(c.Registry().Len()).To(Equal(0))

					n, err := c.NumJoints(ctx, arm)
					Expect(err).NotTo(HaveOccurred())
					Expect(n).To(Equal(4))
				})

				It("keeps named snapshots in a store", func() {
					st := storage.New(GinkgoT().TempDir())
					Expect(st.Init()).To(Succeed())
					id, err := c.SaveSnapshot(ctx, st, "two-bodies")
					Expect(err).NotTo(HaveOccurred())

					meta, err := st.Load(id)
					Expect(err).NotTo(HaveOccurred())
					Expect(meta.Bodies).To(Equal([]string{"two_joint_arm", "cube"}))

					Expect(c.ResetSimulation(ctx)).To(Succeed())
					Expect(c.NumBodies(ctx)).To(Equal(0))
					Expect(c.RestoreSnapshot(ctx, st, id)).To(Succeed())
					Expect(c.NumBodies(ctx)).To(Equal(2))
				})
			})
		})
	}
})

var _ = Describe("Connect", func() {
	It("starts an in-process engine with the configured world", func() {
		cfg := config.DefaultConfig()
		Expect(cfg.ApplyPreset("precise")).To(Succeed())

		c, err := client.Connect(context.Background(), cfg)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(c.Close)

		p, err := c.PhysicsEngineParameters(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Integrator).To(Equal("rk45"))
		Expect(p.SubSteps).To(Equal(4))
		Expect(p.Gravity).To(Equal([3]float64{0, 0, -9.81}))

		info, err := c.EngineInfo(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Version).To(Equal("refengine/1"))
	})

	It("fails to dial an engine that is not there", func() {
		cfg := config.DefaultConfig()
		cfg.Engine.Transport = "tcp"
		cfg.Engine.Address = "127.0.0.1:1"
		_, err := client.Connect(context.Background(), cfg)
		Expect(err).To(MatchError(dynamo.ErrTransport))
	})
})

var _ = Describe("Jacobian", func() {
	It("rejects qdot of the wrong length", func() {
		j := &client.Jacobian{}
		_, err := j.Velocity([]float64{1})
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		v, err := j.Velocity(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(geom.Velocity{}))
	})
})
