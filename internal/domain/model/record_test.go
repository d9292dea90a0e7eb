package model_test

import (
	"encoding/json"
	"testing"
	"time"

	model "github.com/minkalla/valyze/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestInputRecord(t *testing.T) {
	convey.Convey("Given an InputRecord decoded from JSON", t, func() {
		convey.Convey("When optional fields are omitted", func() {
			var rec model.InputRecord
			err := json.Unmarshal([]byte(`{"data_id":"d1","category":"c","value_points":{}}`), &rec)

			convey.Convey("Then defaults should apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.IsSensitive, convey.ShouldBeFalse)
				convey.So(rec.Source, convey.ShouldBeNil)
				convey.So(rec.SourceName(), convey.ShouldEqual, "")
				_, ok := rec.PriorityLabel()
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When every field is present", func() {
			var rec model.InputRecord
			err := json.Unmarshal([]byte(`{
				"data_id":"cust_123","category":"customer_profile",
				"value_points":{"age":30,"location":"NYC"},
				"is_sensitive":true,"source":"CRM","priority":"Critical"}`), &rec)

			convey.Convey("Then accessors should expose them", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.SourceName(), convey.ShouldEqual, "CRM")
				label, ok := rec.PriorityLabel()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(label, convey.ShouldEqual, "Critical")
				convey.So(rec.ValuePoints["location"], convey.ShouldEqual, "NYC")
			})
		})
	})
}

func TestValuationResultJSON(t *testing.T) {
	convey.Convey("Given a ValuationResult", t, func() {
		res := model.ValuationResult{
			ValuationScore:     240,
			ConfidenceScore:    0.85,
			ValuationTimestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			ModelUsed:          "MVP_SimpleValuer",
			ModelVersion:       "0.1.0",
		}

		convey.Convey("When encoding it", func() {
			b, err := json.Marshal(res)

			convey.Convey("Then the timestamp should be ISO-8601 UTC", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(b), convey.ShouldContainSubstring, `"valuation_timestamp":"2025-01-02T03:04:05Z"`)
				convey.So(string(b), convey.ShouldContainSubstring, `"model_used":"MVP_SimpleValuer"`)
			})
		})
	})
}
