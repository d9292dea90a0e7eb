package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minkalla/valyze/internal/adapters/repository"
	service "github.com/minkalla/valyze/internal/app"
	"github.com/minkalla/valyze/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// blockingSink holds every write until released.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Write(ctx context.Context, _ model.Provenance) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitForHistory(svc *service.Service, dataID string, n int) []model.Provenance {
	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := svc.History(context.Background(), dataID, 100)
		if (err == nil && len(got) >= n) || time.Now().After(deadline) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service with a memory ledger", t, func() {
		var ids atomic.Int64
		svc := service.New(ruleBased(),
			service.WithWorkerCount(2),
			service.WithQueueSize(1000),
			service.WithIDGenerator(func() string { return fmt.Sprintf("prov-%d", ids.Add(1)) }),
			service.WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600)) }),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When valuating the same record three times", func() {
			for _, p := range []string{"critical", "low", "normal"} {
				_, err := svc.Valuate(ctx, model.InputRecord{
					DataID:   "asset-7",
					Category: "finance",
					Source:   strPtr("crm"),
					Priority: strPtr(p),
				})
				So(err, ShouldBeNil)
			}

			Convey("Then the ledger should hold three records newest first", func() {
				got := waitForHistory(svc, "asset-7", 3)
				So(got, ShouldHaveLength, 3)
				scores := map[float64]bool{}
				for _, r := range got {
					scores[r.ValuationScore] = true
					So(r.ModelUsed, ShouldEqual, "MVP_SimpleValuer")
					So(r.ModelVersion, ShouldEqual, "0.1.0")
					So(r.Category, ShouldEqual, "finance")
					So(r.Source, ShouldEqual, "crm")
					So(r.RecordedAt.Location(), ShouldEqual, time.UTC)
				}
				So(scores, ShouldResemble, map[float64]bool{200: true, 50: true, 100: true})
			})

			Convey("And History should honour the limit", func() {
				waitForHistory(svc, "asset-7", 3)
				got, err := svc.History(ctx, "asset-7", 1)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
			})
		})

		Convey("When many valuations run concurrently", func() {
			var wg sync.WaitGroup
			scores := make([]float64, 50)
			for i := range scores {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := svc.Valuate(ctx, model.InputRecord{
						DataID:      fmt.Sprintf("c-%d", i%5),
						Category:    "bulk",
						IsSensitive: true,
						Priority:    strPtr("critical"),
					})
					if err == nil {
						scores[i] = res.ValuationScore
					}
				}(i)
			}
			wg.Wait()

			Convey("Then every result should be identical", func() {
				for _, s := range scores {
					So(s, ShouldEqual, 240.0)
				}
			})
		})

		Convey("When History is given an invalid limit", func() {
			_, err := svc.History(ctx, "asset-7", 0)

			Convey("Then it should report ErrInvalidLimit", func() {
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service with a SQLite ledger", t, func() {
		path := filepath.Join(t.TempDir(), "ledger.db")
		svc := service.New(ruleBased(), service.WithLedgerPath(path))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		_, err := svc.Valuate(ctx, model.InputRecord{DataID: "persisted", Category: "c"})
		So(err, ShouldBeNil)
		svc.Stop()

		Convey("When the ledger is reopened after Stop", func() {
			l, err := repository.OpenSQLiteLedger(ctx, path)
			So(err, ShouldBeNil)
			defer l.Close()

			Convey("Then the drained record should be there", func() {
				got, err := l.ByDataID(ctx, "persisted", 10)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].ValuationScore, ShouldEqual, 100.0)
			})
		})
	})

	Convey("Given a service whose provenance pipeline is stalled", t, func() {
		sink := &blockingSink{release: make(chan struct{})}
		svc := service.New(ruleBased(),
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithSinks(sink),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When more valuations arrive than the queue can hold", func() {
			start := time.Now()
			for i := 0; i < 20; i++ {
				_, err := svc.Valuate(ctx, model.InputRecord{DataID: fmt.Sprintf("s-%d", i), Category: "c"})
				So(err, ShouldBeNil)
			}
			elapsed := time.Since(start)
			bypassed := svc.GetStats()["provenanceBypassed"]
			close(sink.release)
			svc.Stop()

			Convey("Then requests should not block and the overflow should be counted", func() {
				So(elapsed, ShouldBeLessThan, 2*time.Second)
				So(bypassed, ShouldBeGreaterThan, int64(0))
			})
		})
	})
}
