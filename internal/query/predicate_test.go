package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"taskboard/internal/domain"
)

func ptr(v int64) *int64 { return &v }

func sampleTasks() []domain.Task {
	return []domain.Task{
		{ID: 1, Title: "Fix backend pagination", StatusSlug: "in_progress", AssigneeID: ptr(42), LabelIDs: []int64{7}},
		{ID: 2, Title: "Backend cleanup", StatusSlug: "draft", AssigneeID: ptr(42), LabelIDs: []int64{1, 2}},
		{ID: 3, Title: "Write docs", StatusSlug: "in_progress"},
		{ID: 4, Title: "BACKEND crash on login", StatusSlug: "in_progress", AssigneeID: ptr(7), LabelIDs: []int64{7}},
	}
}

func TestBuildEmptyFilterMatchesEverything(t *testing.T) {
	pred := Build(domain.TaskFilter{})
	require.IsType(t, All{}, pred)
	for _, task := range sampleTasks() {
		require.True(t, pred.Match(task), "task %d", task.ID)
	}
	require.Nil(t, Leaves(pred))
}

func TestTitleFilterIsCaseInsensitive(t *testing.T) {
	pred := Build(domain.TaskFilter{TitleCont: "backend"})
	var matched []int64
	for _, task := range sampleTasks() {
		if pred.Match(task) {
			matched = append(matched, task.ID)
		}
	}
	require.Equal(t, []int64{1, 2, 4}, matched)

	pred = Build(domain.TaskFilter{TitleCont: "BaCkEnD"})
	require.True(t, pred.Match(sampleTasks()[0]))
}

func TestAssigneeFilterSkipsUnassigned(t *testing.T) {
	pred := Build(domain.TaskFilter{AssigneeID: ptr(42)})
	tasks := sampleTasks()
	require.True(t, pred.Match(tasks[0]))
	require.True(t, pred.Match(tasks[1]))
	require.False(t, pred.Match(tasks[2]), "unassigned task must never match a concrete assignee")
	require.False(t, pred.Match(tasks[3]))
}

func TestLabelFilterIsMembershipBased(t *testing.T) {
	task := domain.Task{ID: 9, Title: "two labels", LabelIDs: []int64{1, 2}}
	require.True(t, Build(domain.TaskFilter{LabelID: ptr(2)}).Match(task))
	require.False(t, Build(domain.TaskFilter{LabelID: ptr(3)}).Match(task))
}

func TestCriteriaCombineConjunctively(t *testing.T) {
	filter := domain.TaskFilter{
		TitleCont:  "backend",
		AssigneeID: ptr(42),
		Status:     "in_progress",
		LabelID:    ptr(7),
	}
	pred := Build(filter)
	require.Len(t, Leaves(pred), 4)

	var matched []int64
	for _, task := range sampleTasks() {
		if pred.Match(task) {
			matched = append(matched, task.ID)
		}
	}
	// Task 4 matches three of four dimensions (wrong assignee) and must
	// be excluded.
	require.Equal(t, []int64{1}, matched)
}

func TestAndFlattensAndKeepsIdentity(t *testing.T) {
	single := And(All{}, StatusIs{Slug: "draft"}, nil)
	require.IsType(t, StatusIs{}, single)

	nested := And(single, And(TitleContains{Substring: "x"}, HasLabel{ID: 1}))
	require.Len(t, Leaves(nested), 3)

	require.IsType(t, All{}, And())
	require.IsType(t, All{}, And(All{}, All{}))
}
