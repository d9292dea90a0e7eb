package types_test

import (
	"testing"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
	types "github.com/minkalla/valyze/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewValuationResponse(t *testing.T) {
	Convey("Given a valuation result", t, func() {
		ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
		res := model.ValuationResult{
			ValuationScore:     120,
			ConfidenceScore:    0.85,
			ValuationTimestamp: ts,
			ModelUsed:          "MVP_SimpleValuer",
			ModelVersion:       "0.1.0",
		}

		Convey("When mapping it to a response", func() {
			resp := types.NewValuationResponse(res)

			Convey("Then every field should be copied and the message fixed", func() {
				So(resp.ValuationScore, ShouldEqual, 120.0)
				So(resp.ConfidenceScore, ShouldEqual, 0.85)
				So(resp.ValuationTimestamp, ShouldEqual, ts)
				So(resp.ModelUsed, ShouldEqual, "MVP_SimpleValuer")
				So(resp.ModelVersion, ShouldEqual, "0.1.0")
				So(resp.Message, ShouldEqual, "Data valuation completed successfully.")
			})
		})
	})
}
