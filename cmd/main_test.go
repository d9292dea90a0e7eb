package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	app "github.com/minkalla/valyze/internal/app"
	"github.com/minkalla/valyze/internal/config"
	"github.com/minkalla/valyze/internal/domain/valuation"
	"github.com/minkalla/valyze/pkg/logger"
	"github.com/minkalla/valyze/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestNewServer(t *testing.T) {
	convey.Convey("Given the default configuration with a SQLite ledger", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Provenance.LedgerPath = filepath.Join(t.TempDir(), "ledger.db")

		srv, svc, err := newServer(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer svc.Stop()

		convey.So(srv.Addr, convey.ShouldEqual, ":8000")
		ts := httptest.NewServer(srv.Handler)
		defer ts.Close()

		convey.Convey("When calling the health endpoint", func() {
			resp, err := http.Get(ts.URL + "/health")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			var body map[string]string
			convey.So(json.NewDecoder(resp.Body).Decode(&body), convey.ShouldBeNil)

			convey.Convey("Then the service should report ok", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(body, convey.ShouldResemble, map[string]string{"status": "ok", "service": "Valyze MVP"})
			})
		})

		convey.Convey("When valuating a critical record", func() {
			resp, err := http.Post(ts.URL+"/valyze/data", "application/json", strings.NewReader(
				`{"input_data":{"data_id":"d1","category":"finance","value_points":{},"priority":"critical"}}`))
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			var body map[string]any
			convey.So(json.NewDecoder(resp.Body).Decode(&body), convey.ShouldBeNil)

			convey.Convey("Then the configured model should score it", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(body["valuation_score"], convey.ShouldEqual, 200.0)
				convey.So(body["model_used"], convey.ShouldEqual, "MVP_SimpleValuer")
			})
		})

		convey.Convey("When scraping metrics", func() {
			resp, err := http.Get(ts.URL + "/metrics")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			convey.Convey("Then the configured model should be exported", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(string(body), convey.ShouldContainSubstring, `valyze_engine_model_info{kind="rule_based",name="MVP_SimpleValuer",version="0.1.0"} 1`)
			})
		})

		convey.Convey("When fetching the API docs", func() {
			resp, err := http.Get(ts.URL + "/api-docs")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()

			convey.Convey("Then the docs route should be mounted", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})
	})

	convey.Convey("Given an unknown model kind", t, func() {
		cfg := config.New()
		cfg.Model.Kind = "neural_net"

		convey.Convey("Then startup should fail with a configuration error", func() {
			_, _, err := newServer(context.Background(), cfg)
			convey.So(errors.Is(err, valuation.ErrInvalidConfiguration), convey.ShouldBeTrue)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		m, err := valuation.New(valuation.KindRuleBased, valuation.Configuration{})
		convey.So(err, convey.ShouldBeNil)
		svc := app.New(m)
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer svc.Stop()

		convey.Convey("Then single updates should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			convey.So(metrics.GetRegistry(), convey.ShouldNotBeNil)
		})

		convey.Convey("Then the loops should return once the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, svc)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("metrics updaters did not stop")
			}
		})
	})
}
