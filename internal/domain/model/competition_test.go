package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	model "github.com/okian/ekpsearch/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func sampleRecord() model.CompetitionRecord {
	return model.CompetitionRecord{
		SportName:        "Футбол",
		SportComposition: "Основной",
		EKPNumber:        "2024-0001",
		DateStart:        model.NewDate(2024, time.May, 1),
		DateEnd:          model.NewDate(2024, time.May, 5),
		City:             "Казань",
		Discipline:       "Мини-футбол",
		CompetitionClass: "Чемпионат России",
		Country:          "Россия",
		MaxPeopleCount:   120,
		GendersAndAges:   []string{"мужчины", "юниоры до 21"},
		Registered:       7,
	}
}

func TestCompetitionRecordBlob(t *testing.T) {
	convey.Convey("Given a full competition record", t, func() {
		r := sampleRecord()

		convey.Convey("When it is flattened into a blob", func() {
			blob := r.Blob()

			convey.Convey("Then fields should appear in the fixed order", func() {
				convey.So(blob, convey.ShouldEqual,
					"Футбол Основной 2024-0001 2024-05-01 2024-05-05 Казань Мини-футбол Чемпионат России Россия 120 мужчины юниоры до 21")
			})

			convey.Convey("And the registration count should not be part of it", func() {
				r2 := r
				r2.Registered = 99
				convey.So(r2.Blob(), convey.ShouldEqual, blob)
			})
		})

		convey.Convey("When the record is cloned", func() {
			c := r.Clone()
			c.GendersAndAges[0] = "женщины"

			convey.Convey("Then the original should be untouched", func() {
				convey.So(r.GendersAndAges[0], convey.ShouldEqual, "мужчины")
			})
		})
	})

	convey.Convey("Given an empty record", t, func() {
		r := model.CompetitionRecord{}

		convey.Convey("Then its blob should only carry separators and the zero capacity", func() {
			convey.So(r.Blob(), convey.ShouldEqual, "         0 ")
		})
	})
}

func TestDate(t *testing.T) {
	convey.Convey("Given date parsing", t, func() {
		convey.Convey("When parsing a calendar date", func() {
			d, err := model.ParseDate("2024-03-09")
			convey.So(err, convey.ShouldBeNil)
			convey.So(d.String(), convey.ShouldEqual, "2024-03-09")
		})

		convey.Convey("When parsing a timestamp", func() {
			d, err := model.ParseDate("2024-03-09T10:00:00Z")
			convey.So(err, convey.ShouldBeNil)
			convey.So(d.String(), convey.ShouldEqual, "2024-03-09")
		})

		convey.Convey("When parsing an empty string", func() {
			d, err := model.ParseDate("  ")
			convey.So(err, convey.ShouldBeNil)
			convey.So(d.IsZero(), convey.ShouldBeTrue)
			convey.So(d.String(), convey.ShouldEqual, "")
		})

		convey.Convey("When parsing garbage", func() {
			_, err := model.ParseDate("09.03.2024")
			convey.So(errors.Is(err, model.ErrInvalidDate), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given JSON encoding of a record", t, func() {
		r := sampleRecord()

		convey.Convey("When it is encoded and decoded", func() {
			b, err := json.Marshal(r)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldContainSubstring, `"date_start":"2024-05-01"`)

			var back model.CompetitionRecord
			convey.So(json.Unmarshal(b, &back), convey.ShouldBeNil)

			convey.Convey("Then dates should survive as calendar days", func() {
				convey.So(back.DateStart.String(), convey.ShouldEqual, "2024-05-01")
				convey.So(back.Blob(), convey.ShouldEqual, r.Blob())
			})
		})

		convey.Convey("When a date is null or malformed", func() {
			var back model.CompetitionRecord
			convey.So(json.Unmarshal([]byte(`{"ekp_number":"x","date_start":null}`), &back), convey.ShouldBeNil)
			convey.So(back.DateStart.IsZero(), convey.ShouldBeTrue)

			err := json.Unmarshal([]byte(`{"date_end":"tomorrow"}`), &back)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
