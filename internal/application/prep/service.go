// Package prep provides the application-level service that drives the
// molecule preparation pipeline: intake, fragment selection, standardization,
// structural repair, conformer generation, persistence, and event publishing.
package prep

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
	"github.com/turtacn/MolPrep-Engine/internal/config"
	domainMol "github.com/turtacn/MolPrep-Engine/internal/domain/molecule"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
	mtypes "github.com/turtacn/MolPrep-Engine/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Ports and inputs
// ─────────────────────────────────────────────────────────────────────────────

// EventPublisher publishes drained molecule domain events.  Implementations
// must be best-effort: a publish failure never aborts a batch.
type EventPublisher interface {
	PublishEvents(ctx context.Context, moleculeID common.ID, events []domainMol.DomainEvent) error
}

// Input is one raw notation entering a preparation batch.
type Input struct {
	Notation string
	Name     string
}

// BatchResult reports a completed preparation batch.
type BatchResult struct {
	Results   []*mtypes.PrepResult `json:"results"`
	Prepared  int                  `json:"prepared"`
	Discarded int                  `json:"discarded"`
}

// Service defines the interface for batch molecule preparation.
type Service interface {
	PrepareBatch(ctx context.Context, inputs []Input) (*BatchResult, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Implementation
// ─────────────────────────────────────────────────────────────────────────────

// serviceImpl implements the Service interface.  All stages run
// single-threaded: the chemistry-engine handles held by the records are not
// safe for concurrent mutation.
type serviceImpl struct {
	eng      chem.Engine
	selector *domainMol.FragmentSelector
	repo     domainMol.Repository
	std      domainMol.Standardizer
	pub      EventPublisher
	metrics  *prometheus.PrepMetrics
	cfg      config.ConformersConfig
	logger   logging.Logger
}

// NewService creates a new preparation application service.  The repository,
// standardizer, publisher, and metrics are optional; a nil port disables the
// corresponding stage without affecting the chemistry pipeline.
func NewService(
	eng chem.Engine,
	repo domainMol.Repository,
	std domainMol.Standardizer,
	pub EventPublisher,
	metrics *prometheus.PrepMetrics,
	cfg config.ConformersConfig,
	logger logging.Logger,
) Service {
	return &serviceImpl{
		eng:      eng,
		selector: domainMol.NewFragmentSelector(eng, logger),
		repo:     repo,
		std:      std,
		pub:      pub,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// PrepareBatch runs the full preparation pipeline over inputs.  A bad input
// degrades only its own record; the returned error is non-nil only for
// infrastructure failures (persistence), never for chemistry failures.
func (s *serviceImpl) PrepareBatch(ctx context.Context, inputs []Input) (*BatchResult, error) {
	if s.metrics != nil {
		s.metrics.BatchesInFlight.WithLabelValues().Inc()
		defer s.metrics.BatchesInFlight.WithLabelValues().Dec()
		s.metrics.BatchSize.WithLabelValues().Observe(float64(len(inputs)))
	}

	result := &BatchResult{Results: make([]*mtypes.PrepResult, 0, len(inputs))}
	survivors := make([]*domainMol.MoleculeRecord, 0, len(inputs))

	for i, in := range inputs {
		res := &mtypes.PrepResult{Input: in.Notation, Name: in.Name}
		result.Results = append(result.Results, res)

		rec := domainMol.NewFromNotation(s.eng, in.Notation, in.Name, s.logger)
		rec.SetContainerIndex(i)

		if rec.EnsureGraph() == nil {
			res.Outcomes = append(res.Outcomes, mtypes.OutcomeUnparseable, mtypes.OutcomeDiscarded)
			res.Error = fmt.Sprintf("input notation could not be parsed: %s", in.Notation)
			s.recordOutcome(string(mtypes.OutcomeUnparseable))
			s.recordDiscard("unparseable")
			result.Discarded++
			continue
		}

		rec = s.desalt(rec, res)
		s.standardize(ctx, rec)
		s.repair(rec, res)

		if rec.HasImplausibleSubstructure() {
			res.Outcomes = append(res.Outcomes, mtypes.OutcomeImplausible, mtypes.OutcomeDiscarded)
			s.recordOutcome(string(mtypes.OutcomeImplausible))
			s.recordDiscard("implausible")
			result.Discarded++
			continue
		}

		s.embed(rec, res)

		res.Outcomes = append(res.Outcomes, mtypes.OutcomePrepared)
		res.Molecule = rec.ToDTO()
		s.recordOutcome(string(mtypes.OutcomePrepared))
		result.Prepared++
		survivors = append(survivors, rec)
	}

	if err := s.persist(ctx, survivors); err != nil {
		return result, err
	}
	s.publish(ctx, survivors)

	return result, nil
}

// desalt reduces a multi-fragment record to its largest fragment.
func (s *serviceImpl) desalt(rec *domainMol.MoleculeRecord, res *mtypes.PrepResult) *domainMol.MoleculeRecord {
	start := time.Now()
	out := s.selector.SelectFragment(rec)
	if out.DesaltedNotation() != out.OriginalNotation() {
		out.AppendGenealogy(fmt.Sprintf("%s (desalted)", out.DesaltedNotation()))
		res.Outcomes = append(res.Outcomes, mtypes.OutcomeDesalted)
		if s.metrics != nil {
			s.metrics.MoleculesDesaltedTotal.WithLabelValues().Inc()
		}
	}
	s.recordStage("desalt", start)
	return out
}

// standardize is best-effort: StandardizeSmiles absorbs service failures and
// falls back to the engine canonical form.
func (s *serviceImpl) standardize(ctx context.Context, rec *domainMol.MoleculeRecord) {
	if s.std == nil {
		return
	}
	start := time.Now()
	rec.StandardizeSmiles(ctx, s.std)
	s.recordStage("standardize", start)
}

// repair runs the fixed-point anomaly correction pass over the record.
func (s *serviceImpl) repair(rec *domainMol.MoleculeRecord, res *mtypes.PrepResult) {
	start := time.Now()
	before := len(rec.Events())
	if err := rec.FixCommonErrors(); err != nil {
		s.logger.Warn("structural repair pass failed",
			logging.String("input", rec.OriginalNotation()),
			logging.Err(err))
		if s.metrics != nil {
			prometheus.RecordError(s.metrics, "repair", string(errors.GetCode(err)))
		}
		s.recordStage("repair", start)
		return
	}
	for _, ev := range rec.Events()[before:] {
		if _, ok := ev.(domainMol.MoleculeRepairedEvent); ok {
			res.Outcomes = append(res.Outcomes, mtypes.OutcomeRepaired)
			s.recordOutcome(string(mtypes.OutcomeRepaired))
			break
		}
	}
	s.recordStage("repair", start)
}

// embed generates 3D conformers for the record per the configured target
// count, RMSD cutoff, and minimization flag.  Embedding failures degrade the
// record to 2D; they are logged, never propagated.
func (s *serviceImpl) embed(rec *domainMol.MoleculeRecord, res *mtypes.PrepResult) {
	if s.cfg.TargetCount <= 0 {
		return
	}
	start := time.Now()
	defer s.recordStage("embed", start)

	if err := rec.Make3D(); err != nil {
		s.logger.Warn("3D promotion failed, molecule kept as 2D",
			logging.String("input", rec.OriginalNotation()),
			logging.Err(err))
		if s.metrics != nil {
			s.metrics.EmbeddingFailuresTotal.WithLabelValues().Inc()
		}
		return
	}
	added := rec.AddConformers(s.cfg.TargetCount, s.cfg.RMSDCutoff, s.cfg.Minimize)
	if len(rec.Conformers()) == 0 {
		s.logger.Warn("no conformer could be embedded, molecule kept as 2D",
			logging.String("input", rec.OriginalNotation()))
		if s.metrics != nil {
			s.metrics.EmbeddingFailuresTotal.WithLabelValues().Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.ConformersGeneratedTotal.WithLabelValues("etkdg").Add(float64(added))
		for _, ev := range rec.Events() {
			if ca, ok := ev.(domainMol.ConformersAddedEvent); ok {
				s.metrics.ConformersEliminatedTotal.WithLabelValues().Add(float64(ca.Eliminated))
			}
		}
		for _, conf := range rec.Conformers() {
			s.metrics.ConformerEnergy.
				WithLabelValues(fmt.Sprintf("%t", conf.Minimized())).
				Observe(conf.Energy())
		}
	}
}

// persist writes all surviving records in a single repository transaction.
func (s *serviceImpl) persist(ctx context.Context, survivors []*domainMol.MoleculeRecord) error {
	if s.repo == nil || len(survivors) == 0 {
		return nil
	}
	dtos := make([]*mtypes.MoleculeDTO, len(survivors))
	for i, rec := range survivors {
		dtos[i] = rec.ToDTO()
	}
	start := time.Now()
	err := s.repo.BatchSave(ctx, dtos)
	if s.metrics != nil {
		prometheus.RecordDBQuery(s.metrics, "batch_save", time.Since(start), err)
	}
	if err != nil {
		s.logger.Error("batch persistence failed",
			logging.Int("molecules", len(dtos)),
			logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to persist prepared molecules")
	}
	return nil
}

// publish drains accumulated domain events from every survivor.  Publish
// failures are logged and absorbed.
func (s *serviceImpl) publish(ctx context.Context, survivors []*domainMol.MoleculeRecord) {
	if s.pub == nil {
		return
	}
	for _, rec := range survivors {
		events := rec.Events()
		if len(events) == 0 {
			continue
		}
		if err := s.pub.PublishEvents(ctx, rec.ID, events); err != nil {
			s.logger.Warn("domain event publish failed",
				logging.String("molecule_id", string(rec.ID)),
				logging.Int("events", len(events)),
				logging.Err(err))
			if s.metrics != nil {
				prometheus.RecordError(s.metrics, "kafka", string(errors.GetCode(err)))
			}
			continue
		}
		rec.ClearEvents()
	}
}

func (s *serviceImpl) recordOutcome(outcome string) {
	if s.metrics != nil {
		prometheus.RecordMoleculeOutcome(s.metrics, outcome)
	}
}

func (s *serviceImpl) recordDiscard(reason string) {
	if s.metrics != nil {
		s.metrics.MoleculesDiscardedTotal.WithLabelValues(reason).Inc()
	}
}

func (s *serviceImpl) recordStage(stage string, start time.Time) {
	if s.metrics != nil {
		prometheus.RecordStage(s.metrics, stage, time.Since(start))
	}
}
