package service_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	service "github.com/minkalla/valyze/internal/app"
	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/internal/domain/valuation"
	"github.com/minkalla/valyze/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogger(buf *syncBuffer) logger.Logger {
	l, err := logger.New(logger.WithOutput(buf), logger.WithFormat(logger.FormatJSON))
	if err != nil {
		panic(err)
	}
	return l
}

// stubModel returns a fixed result or error, or panics.
type stubModel struct {
	result model.ValuationResult
	err    error
	panics bool
}

func (m *stubModel) Name() string    { return "StubModel" }
func (m *stubModel) Version() string { return "9.9" }

func (m *stubModel) Predict(model.InputRecord) (model.ValuationResult, error) {
	if m.panics {
		var multipliers map[string]float64
		multipliers["boom"] = 1 // assignment to entry in nil map
	}
	return m.result, m.err
}

func ruleBased() valuation.Model {
	base := 100.0
	m, err := valuation.New(valuation.KindRuleBased, valuation.Configuration{
		Name:      "MVP_SimpleValuer",
		Version:   "0.1.0",
		BaseValue: &base,
		MultiplierFactor: map[string]float64{
			"critical": 2.0,
			"normal":   1.0,
			"low":      0.5,
		},
	})
	if err != nil {
		panic(err)
	}
	return m
}

func strPtr(s string) *string { return &s }

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(ruleBased())

		Convey("Then it should describe the injected model", func() {
			So(svc, ShouldNotBeNil)
			info := svc.ModelInfo()
			So(info.Kind, ShouldEqual, valuation.KindRuleBased)
			So(info.Name, ShouldEqual, "MVP_SimpleValuer")
			So(info.Version, ShouldEqual, "0.1.0")
			So(info.BaseValue, ShouldEqual, 100.0)
		})

		Convey("Then ModelInfo should hand out copies of the multiplier table", func() {
			info := svc.ModelInfo()
			info.MultiplierFactor["critical"] = 42
			So(svc.ModelInfo().MultiplierFactor["critical"], ShouldEqual, 2.0)
		})

		Convey("Then it should not be started", func() {
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(ruleBased(),
			service.WithWorkerCount(4),
			service.WithQueueSize(50),
			service.WithLedgerCapacity(25),
		)

		Convey("Then the options should be reflected in stats", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 4)
			So(stats["queueSize"], ShouldEqual, 50)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(ruleBased(), service.WithWorkerCount(1))
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["queueLength"], ShouldEqual, 0)
				So(stats["ledgerRecords"], ShouldEqual, 0)
			})

			Convey("And starting twice should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And stopping twice should be safe", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given a service whose ledger path cannot be opened", t, func() {
		svc := service.New(ruleBased(), service.WithLedgerPath(t.TempDir()+"/missing/dir/ledger.db"))

		Convey("Then Start should fail", func() {
			err := svc.Start(context.Background())
			So(err, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestService_Valuate(t *testing.T) {
	Convey("Given a rule-based service", t, func() {
		svc := service.New(ruleBased())

		Convey("When valuating a sensitive critical record", func() {
			res, err := svc.Valuate(context.Background(), model.InputRecord{
				DataID:      "d-1",
				Category:    "finance",
				ValuePoints: map[string]any{},
				IsSensitive: true,
				Priority:    strPtr("critical"),
			})

			Convey("Then the model result should be returned unchanged", func() {
				So(err, ShouldBeNil)
				So(res.ValuationScore, ShouldEqual, 240.0)
				So(res.ConfidenceScore, ShouldEqual, 0.85)
				So(res.ModelUsed, ShouldEqual, "MVP_SimpleValuer")
				So(res.ModelVersion, ShouldEqual, "0.1.0")
				So(res.ValuationTimestamp.Location(), ShouldEqual, time.UTC)
			})

			Convey("And the success should be counted", func() {
				So(svc.GetStats()["valuationsSucceeded"], ShouldEqual, int64(1))
			})
		})

		Convey("When valuating before Start", func() {
			_, err := svc.Valuate(context.Background(), model.InputRecord{DataID: "d-2", Category: "c"})

			Convey("Then provenance should fall back to the log sink", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["provenanceBypassed"], ShouldEqual, int64(1))
			})
		})
	})

	Convey("Given a model that returns an error", t, func() {
		buf := &syncBuffer{}
		svc := service.New(&stubModel{err: errors.New("division by zero")},
			service.WithLogger(captureLogger(buf)))

		Convey("When valuating", func() {
			res, err := svc.Valuate(context.Background(), model.InputRecord{DataID: "bad-1", Category: "c"})

			Convey("Then a model execution error should be returned", func() {
				So(res, ShouldResemble, model.ValuationResult{})
				So(errors.Is(err, valuation.ErrModelExecution), ShouldBeTrue)

				var mee *valuation.ModelExecutionError
				So(errors.As(err, &mee), ShouldBeTrue)
				So(mee.DataID, ShouldEqual, "bad-1")
				So(mee.Model, ShouldEqual, "StubModel")
				So(mee.Diagnostic(), ShouldEqual, "division by zero")
			})

			Convey("And the failure should be logged with the data id", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"level":"ERROR"`)
				So(out, ShouldContainSubstring, `"data_id":"bad-1"`)
				So(out, ShouldContainSubstring, "division by zero")
			})

			Convey("And no provenance should be emitted", func() {
				So(buf.String(), ShouldNotContainSubstring, "provenance record")
				So(svc.GetStats()["valuationsFailed"], ShouldEqual, int64(1))
			})
		})
	})

	Convey("Given a model that panics", t, func() {
		buf := &syncBuffer{}
		svc := service.New(&stubModel{panics: true}, service.WithLogger(captureLogger(buf)))

		Convey("When valuating", func() {
			var err error
			So(func() {
				_, err = svc.Valuate(context.Background(), model.InputRecord{DataID: "boom-1", Category: "c"})
			}, ShouldNotPanic)

			Convey("Then the panic should surface as a model execution error", func() {
				So(errors.Is(err, valuation.ErrModelExecution), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "nil map")
			})

			Convey("And the stack should be logged", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "model panicked")
				So(out, ShouldContainSubstring, `"stack"`)
			})
		})
	})
}
