package mirror

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestDateStampUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+13", 13*3600)
	// 23:30 local on Jan 2 is already Jan 2 10:30 UTC.
	stamp := dateStamp(time.Date(2024, 1, 2, 23, 30, 0, 0, loc))
	if stamp != "2024-01-02" {
		t.Errorf("dateStamp = %q", stamp)
	}

	early := dateStamp(time.Date(2024, 1, 2, 5, 0, 0, 0, loc))
	if early != "2024-01-01" {
		t.Errorf("dateStamp before UTC midnight = %q", early)
	}
}

func TestUniqueName(t *testing.T) {
	now := time.Now()

	name := uniqueName("artwork", ".png", now)
	pattern := regexp.MustCompile(`^artwork-\d+-[0-9a-f]{6}\.png$`)
	if !pattern.MatchString(name) {
		t.Errorf("name %q does not match expected shape", name)
	}

	if other := uniqueName("artwork", ".png", now); other == name {
		t.Error("two names for the same instant collided")
	}

	if got := uniqueName("", "png", now); !strings.HasPrefix(got, "img-") || !strings.HasSuffix(got, ".png") {
		t.Errorf("defaulted name = %q", got)
	}
}

func TestBuildPath(t *testing.T) {
	at := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	if got := buildPath(at, "generated", "a.png"); got != "/2024-06-15/generated/a.png" {
		t.Errorf("buildPath = %q", got)
	}
	if got := buildPath(at, "", "a.png"); got != "/2024-06-15/a.png" {
		t.Errorf("buildPath without subfolder = %q", got)
	}
	if got := buildPath(at, "my folder/..", "a b?.png"); got != "/2024-06-15/my_folder_../a_b_.png" {
		t.Errorf("sanitized path = %q", got)
	}
}
