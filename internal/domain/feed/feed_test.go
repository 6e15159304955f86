package feed_test

import (
	"testing"

	"fragrank/internal/domain/feed"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("Given kill-feed lines", t, func() {
		Convey("A well-formed line yields winner and loser", func() {
			k, ok := feed.Parse("Bob killed by Alice")
			So(ok, ShouldBeTrue)
			So(k.Winner, ShouldEqual, "alice")
			So(k.Loser, ShouldEqual, "bob")
		})

		Convey("Names are trimmed and lower-cased", func() {
			k, ok := feed.Parse("  DarkLord99   killed by   xX_Sniper_Xx ")
			So(ok, ShouldBeTrue)
			So(k.Winner, ShouldEqual, "xx_sniper_xx")
			So(k.Loser, ShouldEqual, "darklord99")
		})

		Convey("Chat noise is rejected without error", func() {
			for _, line := range []string{
				"",
				"gg wp",
				"server restarting in 5 minutes",
				"killed by",
				" killed by Alice",
				"Bob killed by ",
			} {
				_, ok := feed.Parse(line)
				So(ok, ShouldBeFalse)
			}
		})

		Convey("Self-kills are rejected", func() {
			_, ok := feed.Parse("Alice killed by alice")
			So(ok, ShouldBeFalse)
		})

		Convey("Only the first separator splits the line", func() {
			k, ok := feed.Parse("a killed by b killed by c")
			So(ok, ShouldBeTrue)
			So(k.Loser, ShouldEqual, "a")
			So(k.Winner, ShouldEqual, "b killed by c")
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Normalize matches the match-log canonical form", t, func() {
		So(feed.Normalize("  Alice "), ShouldEqual, "alice")
		So(feed.Normalize("BOB"), ShouldEqual, "bob")
		So(feed.Normalize(""), ShouldEqual, "")
	})
}
