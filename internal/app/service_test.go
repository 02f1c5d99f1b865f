package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/termitech/maestro/internal/adapters/registry"
	service "github.com/termitech/maestro/internal/app"
	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fastService starts a service with an absurdly wide tempo range so
// lifecycle tests can play a builtin piece in a few milliseconds.
func fastService(t *testing.T) *service.Service {
	t.Helper()
	svc := service.New(service.WithTempoBounds(20, 100_000, 120))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	return svc
}

func waitForTerminal(svc *service.Service, id string) (session.Snapshot, bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := svc.GetSession(id)
		if err != nil {
			return session.Snapshot{}, false
		}
		if snap.Status.Terminal() {
			return snap, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return session.Snapshot{}, false
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithTempoBounds(30, 200, 90),
			service.WithEventRetention(512),
			service.WithSubscriberBuffer(16),
			service.WithHeartbeatInterval(time.Second),
		)

		Convey("Then it should be created successfully", func() {
			So(svc, ShouldNotBeNil)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
			})

			Convey("And starting twice should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And stopping should mark it stopped", func() {
				svc.Stop()
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Pieces(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := fastService(t)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When listing pieces", func() {
			pieces := svc.ListPieces(ctx)

			Convey("Then the builtin repertoire is present", func() {
				So(len(pieces), ShouldBeGreaterThanOrEqualTo, 3)
			})
		})

		Convey("When fetching a piece by id", func() {
			piece, err := svc.GetPiece(ctx, "c-major-scale")

			Convey("Then it should be returned", func() {
				So(err, ShouldBeNil)
				So(piece.Name, ShouldNotBeEmpty)
				So(piece.Schedule.TotalBeats(), ShouldBeGreaterThan, 0.0)
			})
		})
	})
}

func TestService_SessionLifecycle(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := fastService(t)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When creating a session", func() {
			snap, err := svc.CreateSession(ctx, registry.CreateSpec{
				PieceID: "c-major-scale",
				Tempo:   60_000,
			})
			So(err, ShouldBeNil)

			Convey("Then it starts out preparing", func() {
				So(snap.Status, ShouldEqual, session.StatusPreparing)
				So(snap.ID, ShouldStartWith, "session_")
			})

			Convey("And it shows up in listings", func() {
				all := svc.ListSessions(registry.Filter{})
				So(len(all), ShouldEqual, 1)
				So(all[0].ID, ShouldEqual, snap.ID)
			})

			Convey("When starting playback", func() {
				got, err := svc.ApplyCommand(ctx, snap.ID, "start")
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, session.StatusPlaying)

				Convey("Then it runs to completion and lands in history", func() {
					final, ok := waitForTerminal(svc, snap.ID)
					So(ok, ShouldBeTrue)
					So(final.Status, ShouldEqual, session.StatusEnded)

					rec, err := svc.History().Get(snap.ID)
					So(err, ShouldBeNil)
					So(rec.PieceID, ShouldEqual, "c-major-scale")
					So(rec.TotalNotes, ShouldBeGreaterThan, 0)
				})
			})

			Convey("When applying an unknown command", func() {
				_, err := svc.ApplyCommand(ctx, snap.ID, "rewind")

				Convey("Then it should be rejected", func() {
					So(err, ShouldNotBeNil)
				})
			})

			Convey("When deleting the session", func() {
				So(svc.DeleteSession(ctx, snap.ID), ShouldBeNil)

				Convey("Then it is gone", func() {
					_, err := svc.GetSession(snap.ID)
					So(err, ShouldEqual, registry.ErrSessionNotFound)
				})
			})
		})
	})
}

func TestService_EventsAndStreams(t *testing.T) {
	Convey("Given a session played to completion", t, func() {
		svc := fastService(t)
		defer svc.Stop()
		ctx := context.Background()

		snap, err := svc.CreateSession(ctx, registry.CreateSpec{
			PieceID: "c-major-scale",
			Tempo:   60_000,
		})
		So(err, ShouldBeNil)

		sub, err := svc.Subscribe(ctx, snap.ID)
		So(err, ShouldBeNil)
		defer sub.Close()

		_, err = svc.ApplyCommand(ctx, snap.ID, "start")
		So(err, ShouldBeNil)

		_, ok := waitForTerminal(svc, snap.ID)
		So(ok, ShouldBeTrue)

		Convey("When backfilling events from the top", func() {
			events, err := svc.Events(snap.ID, 0, 0)

			Convey("Then the log holds the whole performance", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldBeGreaterThan, 0)
				So(events[0].Seq, ShouldEqual, uint64(1))
			})
		})

		Convey("When draining the live subscriber", func() {
			var got int
			for range sub.Events() {
				got++
			}

			Convey("Then the stream closed cleanly after delivery", func() {
				So(sub.Err(), ShouldBeNil)
				So(got, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When attaching a late subscriber with replay", func() {
			late, err := svc.SubscribeFrom(ctx, snap.ID, 0)
			So(err, ShouldBeNil)
			defer late.Close()

			var got int
			for range late.Events() {
				got++
			}

			Convey("Then it sees the full retained log", func() {
				So(late.Err(), ShouldBeNil)
				So(got, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestService_GetStats(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats()

			Convey("Then it should return basic stats", func() {
				So(stats, ShouldNotBeNil)
				So(stats["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given a started service", t, func() {
		svc := fastService(t)
		defer svc.Stop()

		Convey("When getting stats", func() {
			stats := svc.GetStats()

			Convey("Then it should report component counts", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["sessions"], ShouldEqual, 0)
				So(stats["pieces"], ShouldNotBeNil)
			})
		})
	})
}
