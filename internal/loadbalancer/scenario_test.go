package loadbalancer

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/llmweaver/gateway/internal/domain"
)

// Scenario-style tests for multi-step routing behaviors: sticky-route
// convergence and health-exclusion degrading back to "all channels" when
// every candidate is unhealthy.
func TestStickyRoutingScenarios(t *testing.T) {
	Convey("Given two channels serving the same model", t, func() {
		lb := New(mustStore(t), Config{DefaultStrategy: domain.StrategyWeightedRandom, StickyEnabled: true})
		channels := []domain.Channel{chanWith(1, 50, "gpt-4"), chanWith(2, 50, "gpt-4")}

		Convey("When a caller's first request lands on a channel and succeeds fast", func() {
			first := lb.Select(context.Background(), "gpt-4", 42, channels, "", true)
			So(first.Found, ShouldBeTrue)
			lb.Record(first.Channel.ID, "gpt-4", 42, true, 10, true)

			Convey("Then subsequent requests from the same caller stick to it", func() {
				for i := 0; i < 20; i++ {
					res := lb.Select(context.Background(), "gpt-4", 42, channels, "", true)
					So(res.Found, ShouldBeTrue)
					So(res.Channel.ID, ShouldEqual, first.Channel.ID)
					So(res.Reason, ShouldEqual, "sticky")
				}
			})

			Convey("And a failure on the pinned channel releases the sticky route", func() {
				lb.Record(first.Channel.ID, "gpt-4", 42, false, 500, false)
				route, ok := lb.sticky.Get(42, "gpt-4")
				So(ok, ShouldBeFalse)
				So(route, ShouldResemble, domain.StickyRoute{})
			})
		})
	})
}

func TestHealthExclusionScenarios(t *testing.T) {
	Convey("Given three channels serving the same model", t, func() {
		lb := New(mustStore(t), Config{DefaultStrategy: domain.StrategyRandom, MaxConsecutiveFailures: 2})
		channels := []domain.Channel{chanWith(1, 1, "gpt-4"), chanWith(2, 1, "gpt-4"), chanWith(3, 1, "gpt-4")}

		Convey("When two of them fail past the consecutive-failure threshold", func() {
			for i := 0; i < 3; i++ {
				lb.Record(1, "gpt-4", 7, false, 0, false)
				lb.Record(2, "gpt-4", 7, false, 0, false)
			}

			Convey("Then selection only ever returns the remaining healthy channel", func() {
				for i := 0; i < 50; i++ {
					res := lb.Select(context.Background(), "gpt-4", 7, channels, domain.StrategyRandom, false)
					So(res.Found, ShouldBeTrue)
					So(res.Channel.ID, ShouldEqual, int64(3))
					So(res.Reason, ShouldEqual, "healthy")
				}
			})

			Convey("And if the last healthy channel also fails, selection degrades to the full pool", func() {
				for i := 0; i < 3; i++ {
					lb.Record(3, "gpt-4", 7, false, 0, false)
				}
				res := lb.Select(context.Background(), "gpt-4", 7, channels, domain.StrategyRandom, false)
				So(res.Found, ShouldBeTrue)
				So(res.Reason, ShouldEqual, "degraded")
			})
		})
	})
}
