package subscription

import "testing"

func TestPlanFromTitle(t *testing.T) {
	cases := []struct {
		title   string
		want    string
		credits *int
		ok      bool
	}{
		{"Starter Plan - Monthly", "starter", intp(200), true},
		{"GG Creator Subscription", "creator", intp(1000), true},
		{"Pro Plan", "pro", nil, true},
		{"Gift Card", "", nil, false},
		{"", "", nil, false},
	}

	for _, tc := range cases {
		plan, ok := PlanFromTitle(tc.title)
		if ok != tc.ok {
			t.Errorf("PlanFromTitle(%q) ok = %v, want %v", tc.title, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if plan.Name != tc.want {
			t.Errorf("PlanFromTitle(%q) = %q, want %q", tc.title, plan.Name, tc.want)
		}
		switch {
		case tc.credits == nil && plan.Credits != nil:
			t.Errorf("PlanFromTitle(%q) credits = %d, want unlimited", tc.title, *plan.Credits)
		case tc.credits != nil && (plan.Credits == nil || *plan.Credits != *tc.credits):
			t.Errorf("PlanFromTitle(%q) credits = %v, want %d", tc.title, plan.Credits, *tc.credits)
		}
	}
}

// Mutating a returned plan's credits must not leak into later lookups.
func TestPlanFromTitleReturnsIndependentCredits(t *testing.T) {
	first, _ := PlanFromTitle("Starter")
	*first.Credits = 1

	second, _ := PlanFromTitle("Starter")
	if *second.Credits != 200 {
		t.Errorf("credits = %d after mutation of earlier result, want 200", *second.Credits)
	}
}

func intp(v int) *int { return &v }
