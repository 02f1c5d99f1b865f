package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		Convey("When created with a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When created with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sessions"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithRegistry(registry),
			)

			Convey("Then it should honor the options", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "sessions")
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording domain metrics", func() {
			RecordSessionCreated()
			UpdateSessionsActive(3)
			RecordSessionFinished("ended")
			RecordEventAppended("note_frame")
			RecordNoteEmitted()
			RecordNoteError()
			RecordDriverLag(2.5)
			RecordControlCommand("pause", "ok")
			RecordSubscriberAttached()
			RecordSubscriberDetached()
			RecordSubscriberDropped()
			RecordReplayedEvents(10)
			RecordHeartbeatSent()
			RecordHTTPRequest("/sessions", "POST", "201")
			RecordHTTPRequestDuration("/sessions", "POST", "201", 1.2)
			UpdateHistoryRecords(5)

			Convey("Then the registry should gather without error", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}
