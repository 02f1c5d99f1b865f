package grading_test

import (
	"testing"

	"github.com/termitech/maestro/internal/domain/grading"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaultPolicy(t *testing.T) {
	policy := grading.DefaultPolicy()

	Convey("Given a natural completion with no errors", t, func() {
		r := policy.Grade(grading.Outcome{Completed: true, TotalNotes: 4, ErrorNotes: 0})

		Convey("Then the performance succeeds with full accuracy", func() {
			So(r.Success, ShouldBeTrue)
			So(r.Graded, ShouldBeTrue)
			So(r.Accuracy, ShouldEqual, 1.0)
		})
	})

	Convey("Given a natural completion with late notes", t, func() {
		r := policy.Grade(grading.Outcome{Completed: true, TotalNotes: 10, ErrorNotes: 2})

		Convey("Then it fails but is still graded", func() {
			So(r.Success, ShouldBeFalse)
			So(r.Graded, ShouldBeTrue)
			So(r.Accuracy, ShouldAlmostEqual, 0.8)
		})
	})

	Convey("Given a manual stop mid-piece", t, func() {
		r := policy.Grade(grading.Outcome{Completed: false, TotalNotes: 10, ErrorNotes: 0})

		Convey("Then it neither succeeds nor grades accuracy", func() {
			So(r.Success, ShouldBeFalse)
			So(r.Graded, ShouldBeFalse)
		})
	})

	Convey("Given an empty schedule that completed", t, func() {
		r := policy.Grade(grading.Outcome{Completed: true, TotalNotes: 0, ErrorNotes: 0})

		Convey("Then it succeeds but accuracy is not graded", func() {
			So(r.Success, ShouldBeTrue)
			So(r.Graded, ShouldBeFalse)
		})
	})
}
