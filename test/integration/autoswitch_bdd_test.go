//go:build integration

package integration

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/daemon"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/infra"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/policy"
	"github.com/eliteGoblin/cdsp-autoswitch/test/fixtures"
)

type switchProbe struct {
	active atomic.Bool
}

func (p *switchProbe) MediaActive() bool { return p.active.Load() }

// rig is one daemon instance wired to real files and a fake engine.
type rig struct {
	autoswitch *daemon.Autoswitch
	pipeline   *daemon.Pipeline
	state      *infra.FileStateStore
}

func newRig(ctx context.Context, tree *fixtures.ProfileTree, camilla *fixtures.FakeCamilla, probe *switchProbe) *rig {
	logger := zap.NewNop()
	host, port := camilla.HostPort()

	cfg := daemon.DefaultConfig()
	cfg.Camilla = infra.CamillaConfig{Host: host, Port: port, Timeout: 2 * time.Second}

	state := infra.NewFileStateStore(tree.StateFile(), logger)
	mapping, err := policy.LoadMapping(tree.MappingFile())
	Expect(err).NotTo(HaveOccurred())

	pipeline, err := daemon.Bootstrap(ctx, cfg, daemon.Deps{
		Mapping:   mapping,
		Validator: infra.NewYAMLValidator(),
		Applier:   infra.NewCamillaApplier(cfg.Camilla, logger),
		Resolver:  infra.NewYAMLResolver(tree.ProfilesDir(), state),
		Processes: infra.NewProcessManager(),
		Probe:     probe,
	}, logger)
	Expect(err).NotTo(HaveOccurred())

	return &rig{
		autoswitch: daemon.NewAutoswitch(cfg, pipeline, state, logger),
		pipeline:   pipeline,
		state:      state,
	}
}

func (r *rig) tick(ctx context.Context) {
	Expect(r.autoswitch.Tick(ctx)).To(Succeed())
}

var _ = Describe("Autoswitch daemon", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		tmpDir  string
		tree    *fixtures.ProfileTree
		camilla *fixtures.FakeCamilla
		probe   *switchProbe
		r       *rig
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "cdsp-integration-*")
		Expect(err).NotTo(HaveOccurred())

		tree = fixtures.NewProfileTree(tmpDir)
		Expect(tree.Create("music.yml", "cinema.yml", "cinema.night.yml")).To(Succeed())
		Expect(tree.WriteMapping("cinema", "night", "music", "normal")).To(Succeed())

		ctx, cancel = context.WithCancel(context.Background())
		camilla = fixtures.StartFakeCamilla()
		probe = &switchProbe{}
		r = newRig(ctx, tree, camilla, probe)
	})

	AfterEach(func() {
		cancel()
		camilla.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("auto mode", func() {
		Context("when media starts and stops", func() {
			It("should load the mapped profile once per transition", func() {
				r.tick(ctx)
				Expect(camilla.Loaded()).To(Equal([]string{tree.Path("music.yml")}))

				probe.active.Store(true)
				r.tick(ctx)
				r.tick(ctx)
				Expect(camilla.Loaded()).To(Equal([]string{
					tree.Path("music.yml"),
					tree.Path("cinema.night.yml"),
				}))

				probe.active.Store(false)
				r.tick(ctx)
				Expect(camilla.Loaded()).To(HaveLen(3))
				Expect(camilla.Loaded()[2]).To(Equal(tree.Path("music.yml")))
			})
		})

		Context("when the target profile is broken", func() {
			It("should keep the engine config and load it once repaired", func() {
				r.tick(ctx)
				Expect(tree.Corrupt("cinema.night.yml")).To(Succeed())

				probe.active.Store(true)
				r.tick(ctx)
				r.tick(ctx)
				Expect(camilla.Loaded()).To(Equal([]string{tree.Path("music.yml")}))

				Expect(tree.Repair("cinema.night.yml")).To(Succeed())
				r.tick(ctx)
				Expect(camilla.Loaded()).To(Equal([]string{
					tree.Path("music.yml"),
					tree.Path("cinema.night.yml"),
				}))
			})
		})

		Context("when the engine refuses a config", func() {
			It("should retry on the next tick", func() {
				camilla.Reject(true)
				r.tick(ctx)
				Expect(camilla.Loaded()).To(BeEmpty())

				camilla.Reject(false)
				r.tick(ctx)
				Expect(camilla.Loaded()).To(Equal([]string{tree.Path("music.yml")}))
			})
		})
	})

	Describe("manual mode", func() {
		It("should follow the profile and variant selected on the CLI", func() {
			_, err := r.state.Update(map[string]string{"mode": "manual", "profile": "cinema", "variant": "normal"})
			Expect(err).NotTo(HaveOccurred())

			r.tick(ctx)
			Expect(camilla.Loaded()).To(Equal([]string{tree.Path("cinema.yml")}))

			probe.active.Store(true)
			r.tick(ctx)
			Expect(camilla.Loaded()).To(HaveLen(1))

			_, err = r.state.Update(map[string]string{"variant": "night"})
			Expect(err).NotTo(HaveOccurred())
			r.tick(ctx)
			Expect(camilla.Loaded()).To(Equal([]string{
				tree.Path("cinema.yml"),
				tree.Path("cinema.night.yml"),
			}))
		})

		It("should load the experimental file while it is set", func() {
			Expect(tree.Create("music.yml", "cinema.yml", "cinema.night.yml", "trial.yml")).To(Succeed())
			_, err := r.state.Update(map[string]string{"mode": "manual", "experimental_yml": tree.Path("trial.yml")})
			Expect(err).NotTo(HaveOccurred())

			r.tick(ctx)
			Expect(camilla.Loaded()).To(Equal([]string{tree.Path("trial.yml")}))

			_, err = r.state.Update(map[string]string{"experimental_yml": ""})
			Expect(err).NotTo(HaveOccurred())
			r.tick(ctx)
			Expect(camilla.Loaded()).To(Equal([]string{
				tree.Path("trial.yml"),
				tree.Path("music.yml"),
			}))
		})
	})

	Describe("journal replay", func() {
		It("should restart without reloading the config already applied", func() {
			journal, err := infra.OpenJournal(tree.JournalPath(), nil, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			Expect(journal.Attach(ctx, r.pipeline.Bus)).To(Succeed())

			probe.active.Store(true)
			r.tick(ctx)
			Expect(camilla.Loaded()).To(Equal([]string{tree.Path("cinema.night.yml")}))
			Expect(journal.Close()).To(Succeed())

			restarted := fixtures.StartFakeCamilla()
			defer restarted.Close()
			r2 := newRig(ctx, tree, restarted, probe)

			journal, err = infra.OpenJournal(tree.JournalPath(), nil, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			defer journal.Close()

			n, err := daemon.Replay(ctx, r2.pipeline, journal, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeNumerically(">", 0))
			Expect(r2.pipeline.Executor.State().AppliedPath).To(Equal(tree.Path("cinema.night.yml")))
			Expect(r2.pipeline.Store.Len()).To(Equal(n))

			r2.tick(ctx)
			Expect(restarted.Loaded()).To(BeEmpty())

			probe.active.Store(false)
			r2.tick(ctx)
			Expect(restarted.Loaded()).To(Equal([]string{tree.Path("music.yml")}))
		})
	})
})
