package prep

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/MolPrep-Engine/internal/chem/lite"
	"github.com/turtacn/MolPrep-Engine/internal/config"
	domainMol "github.com/turtacn/MolPrep-Engine/internal/domain/molecule"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
	mtypes "github.com/turtacn/MolPrep-Engine/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRepository struct {
	saved   []*mtypes.MoleculeDTO
	saveErr error
}

func (f *fakeRepository) Save(_ context.Context, mol *mtypes.MoleculeDTO) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, mol)
	return nil
}

func (f *fakeRepository) FindByID(_ context.Context, id common.ID) (*mtypes.MoleculeDTO, error) {
	for _, m := range f.saved {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "molecule not found")
}

func (f *fakeRepository) FindByCanonicalSmiles(_ context.Context, smiles string) (*mtypes.MoleculeDTO, error) {
	for _, m := range f.saved {
		if m.CanonicalSmiles == smiles {
			return m, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "molecule not found")
}

func (f *fakeRepository) List(_ context.Context, _ common.Pagination) ([]*mtypes.MoleculeDTO, error) {
	return f.saved, nil
}

func (f *fakeRepository) BatchSave(ctx context.Context, mols []*mtypes.MoleculeDTO) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, mols...)
	return nil
}

func (f *fakeRepository) Delete(_ context.Context, _ common.ID) error { return nil }

type fakePublisher struct {
	published  map[common.ID][]domainMol.DomainEvent
	publishErr error
}

func (f *fakePublisher) PublishEvents(_ context.Context, id common.ID, events []domainMol.DomainEvent) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	if f.published == nil {
		f.published = map[common.ID][]domainMol.DomainEvent{}
	}
	f.published[id] = append(f.published[id], events...)
	return nil
}

type fakeStandardizer struct {
	calls int
	out   string
	err   error
}

func (f *fakeStandardizer) Standardize(_ context.Context, smiles string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return smiles, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

func observedLogger() (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logging.NewLoggerFromCore(core), logs
}

type fixture struct {
	svc  Service
	repo *fakeRepository
	pub  *fakePublisher
	std  *fakeStandardizer
	logs *observer.ObservedLogs
}

func newFixture(cfg config.ConformersConfig, mutate ...func(*fixture)) *fixture {
	f := &fixture{
		repo: &fakeRepository{},
		pub:  &fakePublisher{},
		std:  &fakeStandardizer{},
	}
	for _, m := range mutate {
		m(f)
	}
	log, logs := observedLogger()
	f.logs = logs
	f.svc = NewService(lite.New(lite.WithSeed(42)), f.repo, f.std, f.pub, nil, cfg, log)
	return f
}

func defaultConformers() config.ConformersConfig {
	return config.ConformersConfig{TargetCount: 2, RMSDCutoff: 0, Minimize: false}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestPrepareBatch_PreparesCleanInput(t *testing.T) {
	f := newFixture(defaultConformers())

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO", Name: "ethanol"}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Prepared)
	assert.Equal(t, 0, result.Discarded)
	require.Len(t, result.Results, 1)

	res := result.Results[0]
	assert.Equal(t, []mtypes.PrepOutcome{mtypes.OutcomePrepared}, res.Outcomes)
	require.NotNil(t, res.Molecule)
	assert.Equal(t, "CCO", res.Molecule.CanonicalSmiles)
	assert.Equal(t, "ethanol", res.Molecule.Name)
	assert.Len(t, res.Molecule.Conformers, 2)

	require.Len(t, f.repo.saved, 1)
	assert.Equal(t, res.Molecule.ID, f.repo.saved[0].ID)
}

func TestPrepareBatch_PublishesDrainedEvents(t *testing.T) {
	f := newFixture(defaultConformers())

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO"}})
	require.NoError(t, err)

	id := result.Results[0].Molecule.ID
	events := f.pub.published[id]
	require.NotEmpty(t, events)

	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.EventType()
	}
	assert.Contains(t, types, "molecule.created")
	assert.Contains(t, types, "molecule.conformers_added")
}

func TestPrepareBatch_UnparseableInputDegradesOnlyItself(t *testing.T) {
	f := newFixture(defaultConformers())

	result, err := f.svc.PrepareBatch(context.Background(), []Input{
		{Notation: "C(not a notation"},
		{Notation: "CCO"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Prepared)
	assert.Equal(t, 1, result.Discarded)

	bad := result.Results[0]
	assert.Equal(t, []mtypes.PrepOutcome{mtypes.OutcomeUnparseable, mtypes.OutcomeDiscarded}, bad.Outcomes)
	assert.NotEmpty(t, bad.Error)
	assert.Nil(t, bad.Molecule)

	good := result.Results[1]
	assert.Equal(t, []mtypes.PrepOutcome{mtypes.OutcomePrepared}, good.Outcomes)
	require.Len(t, f.repo.saved, 1)
	assert.Equal(t, "CCO", f.repo.saved[0].CanonicalSmiles)
}

func TestPrepareBatch_DesaltsMultiFragmentInput(t *testing.T) {
	f := newFixture(defaultConformers())

	result, err := f.svc.PrepareBatch(context.Background(), []Input{
		{Notation: "CCO.[Na+].[Cl-]", Name: "ethanol sodium chloride"},
	})
	require.NoError(t, err)

	res := result.Results[0]
	assert.Equal(t, []mtypes.PrepOutcome{mtypes.OutcomeDesalted, mtypes.OutcomePrepared}, res.Outcomes)
	require.NotNil(t, res.Molecule)
	assert.Equal(t, "CCO.[Na+].[Cl-]", res.Molecule.OriginalNotation)
	assert.Equal(t, "CCO", res.Molecule.DesaltedNotation)
	assert.Contains(t, res.Molecule.Genealogy, "CCO (desalted)")
}

func TestPrepareBatch_RepairsChargedNitrogen(t *testing.T) {
	f := newFixture(defaultConformers())

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "C[N+](C)C"}})
	require.NoError(t, err)

	res := result.Results[0]
	assert.Equal(t, []mtypes.PrepOutcome{mtypes.OutcomeRepaired, mtypes.OutcomePrepared}, res.Outcomes)
	require.NotNil(t, res.Molecule)
	assert.Equal(t, "CN(C)C", res.Molecule.CanonicalSmiles)
	assert.Contains(t, res.Molecule.Genealogy, "CN(C)C (error-fixed)")
}

func TestPrepareBatch_DiscardsImplausibleSubstructure(t *testing.T) {
	f := newFixture(defaultConformers())

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CC(O)=N"}})
	require.NoError(t, err)

	res := result.Results[0]
	assert.Equal(t, []mtypes.PrepOutcome{mtypes.OutcomeImplausible, mtypes.OutcomeDiscarded}, res.Outcomes)
	assert.Nil(t, res.Molecule)
	assert.Equal(t, 1, result.Discarded)
	assert.Empty(t, f.repo.saved)
}

func TestPrepareBatch_ZeroTargetCountSkipsEmbedding(t *testing.T) {
	f := newFixture(config.ConformersConfig{TargetCount: 0})

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO"}})
	require.NoError(t, err)

	res := result.Results[0]
	assert.Equal(t, []mtypes.PrepOutcome{mtypes.OutcomePrepared}, res.Outcomes)
	require.NotNil(t, res.Molecule)
	assert.Empty(t, res.Molecule.Conformers)
}

func TestPrepareBatch_RMSDCutoffCollapsesRedundantConformers(t *testing.T) {
	f := newFixture(config.ConformersConfig{TargetCount: 4, RMSDCutoff: 2.0, Minimize: true})

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO"}})
	require.NoError(t, err)

	require.NotNil(t, result.Results[0].Molecule)
	assert.Len(t, result.Results[0].Molecule.Conformers, 1)
	assert.True(t, result.Results[0].Molecule.Conformers[0].Minimized)
}

func TestPrepareBatch_StandardizerIsConsulted(t *testing.T) {
	f := newFixture(defaultConformers())

	_, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO"}, {Notation: "CC"}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.std.calls)
}

func TestPrepareBatch_StandardizerFailureIsAbsorbed(t *testing.T) {
	f := newFixture(defaultConformers(), func(f *fixture) {
		f.std = &fakeStandardizer{err: fmt.Errorf("service down")}
	})

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Prepared)

	entries := f.logs.FilterMessage("standardization service failed, using engine canonical form")
	assert.Equal(t, 1, entries.Len())
}

func TestPrepareBatch_PersistenceFailureReturnsError(t *testing.T) {
	f := newFixture(defaultConformers(), func(f *fixture) {
		f.repo = &fakeRepository{saveErr: fmt.Errorf("connection refused")}
	})

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))

	// The chemistry still completed; only persistence failed.
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Prepared)
}

func TestPrepareBatch_PublishFailureIsAbsorbed(t *testing.T) {
	f := newFixture(defaultConformers(), func(f *fixture) {
		f.pub = &fakePublisher{publishErr: fmt.Errorf("broker unreachable")}
	})

	result, err := f.svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Prepared)

	entries := f.logs.FilterMessage("domain event publish failed")
	assert.Equal(t, 1, entries.Len())
}

func TestPrepareBatch_NilPortsDisableStages(t *testing.T) {
	log := logging.NewNopLogger()
	svc := NewService(lite.New(lite.WithSeed(42)), nil, nil, nil, nil, defaultConformers(), log)

	result, err := svc.PrepareBatch(context.Background(), []Input{{Notation: "CCO"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Prepared)
	require.NotNil(t, result.Results[0].Molecule)
}

func TestPrepareBatch_EmptyBatch(t *testing.T) {
	f := newFixture(defaultConformers())

	result, err := f.svc.PrepareBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Empty(t, f.repo.saved)
}

func TestPrepareBatch_RecordsMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(
		prometheus.CollectorConfig{Namespace: "molprep"}, logging.NewNopLogger())
	require.NoError(t, err)
	metrics := prometheus.NewPrepMetrics(collector)

	log, _ := observedLogger()
	svc := NewService(lite.New(lite.WithSeed(42)), &fakeRepository{}, nil, nil, metrics, defaultConformers(), log)

	_, err = svc.PrepareBatch(context.Background(), []Input{
		{Notation: "CCO"},
		{Notation: "C(not a notation"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `molprep_molecules_processed_total{outcome="prepared"} 1`)
	assert.Contains(t, body, `molprep_molecules_processed_total{outcome="unparseable"} 1`)
	assert.Contains(t, body, `molprep_molecules_discarded_total{reason="unparseable"} 1`)
	assert.Contains(t, body, `molprep_conformers_generated_total{algorithm="etkdg"}`)
	assert.Contains(t, body, `molprep_stage_duration_seconds`)
}

func TestPrepareBatch_ContainerIndexFollowsInputOrder(t *testing.T) {
	f := newFixture(config.ConformersConfig{TargetCount: 0})

	result, err := f.svc.PrepareBatch(context.Background(), []Input{
		{Notation: "CC"}, {Notation: "CCO"}, {Notation: "CCC"},
	})
	require.NoError(t, err)

	for i, res := range result.Results {
		require.NotNil(t, res.Molecule)
		assert.Equal(t, i, res.Molecule.ContainerIndex)
	}
}
