package config_test

import (
	"testing"

	"fragrank/internal/config"

	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.DatabaseURL, convey.ShouldEqual, "")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 65_536)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 1)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.StreakWindowMS, convey.ShouldEqual, 15_000)
		})
	})
}
