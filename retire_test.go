package cttso_pieriandx_gateway

import (
	"reflect"
	"testing"
)

func TestPlanRetirement(t *testing.T) {

	clock := FixedClock{Time: mustTime("2021-07-30T00:00:00Z")}

	t.Run("to-be-deleted assignee retires the row", func(t *testing.T) {
		row := trackedRow("100")
		row.CaseAssignee = AssigneeToBeDeleted
		cases := []DiagnosticsCase{{CaseID: "100"}}

		plan := PlanRetirement([]TrackingRow{row}, cases, nil, clock, testLogger)
		if len(plan.Live) != 0 {
			t.Errorf("got %d live rows want 0", len(plan.Live))
		}
		if len(plan.Retired) != 1 {
			t.Fatalf("got %d retired records want 1", len(plan.Retired))
		}
		if plan.Retired[0].RetiredAt != "2021-07-30T00:00:00Z" {
			t.Errorf("got retirement date %v want 2021-07-30T00:00:00Z", plan.Retired[0].RetiredAt)
		}
		if !reflect.DeepEqual(plan.RetiredCaseIDs, []string{"100"}) {
			t.Errorf("got retired case ids %v want [100]", plan.RetiredCaseIDs)
		}
	})

	t.Run("to-be-deleted assignee retires a row with no case id", func(t *testing.T) {
		row := trackedRow("")
		row.CaseAssignee = AssigneeToBeDeleted

		plan := PlanRetirement([]TrackingRow{row}, nil, nil, clock, testLogger)
		if len(plan.Live) != 0 {
			t.Errorf("got %d live rows want 0", len(plan.Live))
		}
		if len(plan.Retired) != 1 {
			t.Fatalf("got %d retired records want 1", len(plan.Retired))
		}
		if len(plan.RetiredCaseIDs) != 0 {
			t.Errorf("got retired case ids %v want none", plan.RetiredCaseIDs)
		}
	})

	t.Run("vanished case retires the row", func(t *testing.T) {
		row := trackedRow("100")
		plan := PlanRetirement([]TrackingRow{row}, nil, nil, clock, testLogger)
		if len(plan.Live) != 0 || len(plan.Retired) != 1 {
			t.Errorf("got %d live %d retired want 0/1", len(plan.Live), len(plan.Retired))
		}
	})

	t.Run("live case stays", func(t *testing.T) {
		row := trackedRow("100")
		cases := []DiagnosticsCase{{CaseID: "100"}}
		plan := PlanRetirement([]TrackingRow{row}, cases, nil, clock, testLogger)
		if len(plan.Live) != 1 || len(plan.Retired) != 0 {
			t.Errorf("got %d live %d retired want 1/0", len(plan.Live), len(plan.Retired))
		}
	})

	t.Run("sentinel case ids are not treated as vanished", func(t *testing.T) {
		row := trackedRow(CaseIDPending)
		plan := PlanRetirement([]TrackingRow{row}, nil, nil, clock, testLogger)
		if len(plan.Live) != 1 || len(plan.Retired) != 0 {
			t.Errorf("got %d live %d retired want 1/0", len(plan.Live), len(plan.Retired))
		}
	})

	t.Run("audit appends deduplicate by case id", func(t *testing.T) {
		row := trackedRow("100")
		existing := []RetiredRecord{{TrackingRow: trackedRow("100"), RetiredAt: "2021-07-01T00:00:00Z"}}
		plan := PlanRetirement([]TrackingRow{row}, nil, existing, clock, testLogger)
		if len(plan.Retired) != 0 {
			t.Errorf("got %d retired records want 0, case already audited", len(plan.Retired))
		}
		if !reflect.DeepEqual(plan.RetiredCaseIDs, []string{"100"}) {
			t.Errorf("got retired case ids %v want [100]", plan.RetiredCaseIDs)
		}
	})
}
