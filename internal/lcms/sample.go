package lcms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/524D/mzfeat/internal/noise"
	"github.com/524D/mzfeat/internal/spectrum"

	"golang.org/x/sync/errgroup"
)

// ErrNoMsMs is returned for a run without fragment spectra when fragment
// spectra are required
var ErrNoMsMs = errors.New("run has no MS/MS scans")

// SpectrumStore provides the peaks of every scan of a run
type SpectrumStore interface {
	Scan(scanID int) (spectrum.Spectrum, error)
}

// Sample is one run with everything detected in it. A sample is processed
// by one goroutine at a time.
type Sample struct {
	Run      *Run
	MS1Noise noise.Model
	MS2Noise noise.Model
	Arena    *Arena
	Cache    *TraceCache
	Builder  *Builder
	Ions     []*FragmentedIon

	store  SpectrumStore
	params Params
	log    *slog.Logger
	err    error
}

// NewSample creates a sample and fits its noise models over all scans of
// run
func NewSample(run *Run, store SpectrumStore, params Params, log *slog.Logger) (*Sample, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sample{
		Run:    run,
		Arena:  NewArena(),
		Cache:  NewTraceCache(),
		store:  store,
		params: params,
		log:    log.With("sample", run.Name),
	}
	s.Builder = newBuilder(s, params.Trace)
	if err := s.fitNoise(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sample) fitNoise() error {
	ms1 := noise.NewStatistics(s.params.Trace.NoisePercentile)
	ms2 := noise.NewStatistics(s.params.Trace.NoisePercentile)
	for _, scan := range s.Run.Scans() {
		spec, err := s.store.Scan(scan.ID)
		if err != nil {
			return fmt.Errorf("fitting noise of %s: %w", s.Run.Name, err)
		}
		if scan.IsMsMs() {
			ms2.Add(scan.ID, spec)
		} else {
			ms1.Add(scan.ID, spec)
		}
	}
	s.MS1Noise = ms1.Local(s.params.Trace.NoiseWindow)
	s.MS2Noise = ms2.Constant()
	s.log.Debug("noise fitted", "ms1Scans", ms1.Len(), "ms2Scans", ms2.Len(),
		"ms2Level", float64(ms2.Constant()))
	return nil
}

// spectrum returns the peaks of a scan. A storage failure is recorded as
// the sample error and an empty spectrum is returned.
func (s *Sample) spectrum(scanID int) spectrum.Spectrum {
	spec, err := s.store.Scan(scanID)
	if err != nil {
		if s.err == nil {
			s.err = fmt.Errorf("scan %d of %s: %w", scanID, s.Run.Name, err)
		}
		return nil
	}
	return spec
}

// Err returns the first error of the sample: a storage failure or a run
// without fragment spectra
func (s *Sample) Err() error {
	return s.err
}

// Params returns the parameters the sample is processed with
func (s *Sample) Params() Params {
	return s.params
}

// Process runs the detection pipeline: fragment spectra are placed on
// traces and segmented, correlated peaks are annotated, ions that are
// satellites of other ions are removed and peak shapes are fitted.
func (s *Sample) Process() error {
	if s.params.MS2.RequireMsMs && len(s.Run.MsMsScans()) == 0 {
		s.err = fmt.Errorf("%s: %w", s.Run.Name, ErrNoMsMs)
		return s.err
	}
	ions := s.ExtractAndSegment()
	if s.err != nil {
		return s.err
	}
	s.log.Debug("segmented", "ions", len(ions), "traces", s.Arena.Len())

	if s.params.MS2.CorrelatePeaks {
		kept := ions[:0]
		for _, ion := range ions {
			if !s.DetectCorrelatedPeaks(ion) {
				apex := ion.Apex()
				s.log.Debug("ion is an isotope of a lighter ion", "scan", apex.ScanID, "mz", apex.Mz)
				continue
			}
			kept = append(kept, ion)
		}
		ions = kept
		if s.err != nil {
			return s.err
		}
	}
	if s.params.MS2.DedupeIonNetworks {
		ions = Dedupe(ions)
	}
	if s.params.MS2.FitPeakShape {
		for _, ion := range ions {
			shape, err := FitPeakShape(ion.Trace, ion.Segment)
			if err != nil {
				s.log.Debug("peak shape fit failed", "trace", ion.Trace.ID, "err", err)
				continue
			}
			ion.PeakShape = shape
		}
	}
	s.Ions = ions
	hits, misses := s.Cache.Stats()
	s.log.Info("sample processed", "ions", len(ions), "traces", s.Arena.Len(),
		"cacheHits", hits, "cacheMisses", misses)
	return nil
}

// Instance owns the samples of one processing job
type Instance struct {
	Samples []*Sample
	params  Params
	log     *slog.Logger
}

// NewInstance checks params and creates an empty instance
func NewInstance(params Params, log *slog.Logger) (*Instance, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Instance{params: params, log: log}, nil
}

// AddSample adds a run whose spectra are in store
func (in *Instance) AddSample(run *Run, store SpectrumStore) (*Sample, error) {
	s, err := NewSample(run, store, in.params, in.log)
	if err != nil {
		return nil, err
	}
	in.Samples = append(in.Samples, s)
	return s, nil
}

// ProcessSample processes sample i
func (in *Instance) ProcessSample(i int) error {
	if i < 0 || i >= len(in.Samples) {
		return fmt.Errorf("sample %d of %d: %w", i, len(in.Samples), ErrInvalidArgument)
	}
	return in.Samples[i].Process()
}

// ProcessAll processes the samples on up to workers goroutines. A failing
// sample does not stop the others; all errors are returned joined.
func (in *Instance) ProcessAll(ctx context.Context, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	errs := make([]error, len(in.Samples))
	for i := range in.Samples {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			if err := in.ProcessSample(i); err != nil {
				in.log.Error("sample failed", "sample", in.Samples[i].Run.Name, "err", err)
				errs[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
