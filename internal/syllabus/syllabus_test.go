package syllabus

import "testing"

const sampleText = `CS 301: Algorithms and Data Structures
Fall 2026 Syllabus

Chapter 1: Asymptotic Analysis
Chapter 2: Sorting Algorithms
Week 3 - Binary Search Trees
Unit 4. Graph Traversal
5: Dynamic Programming
Chapter 2: Sorting Algorithms
2026
Office hours: Tuesdays`

func TestExtractChapters(t *testing.T) {
	chapters := ExtractChapters(sampleText)

	want := []string{
		"Asymptotic Analysis",
		"Sorting Algorithms",
		"Binary Search Trees",
		"Graph Traversal",
		"Dynamic Programming",
	}
	if len(chapters) != len(want) {
		t.Fatalf("got %d chapters, want %d: %+v", len(chapters), len(want), chapters)
	}
	for i, w := range want {
		if chapters[i].Title != w {
			t.Errorf("chapters[%d].Title = %q, want %q", i, chapters[i].Title, w)
		}
		if chapters[i].Index != i {
			t.Errorf("chapters[%d].Index = %d", i, chapters[i].Index)
		}
	}
}

func TestExtractChapters_NoHeadings(t *testing.T) {
	if got := ExtractChapters("just prose with no structure at all"); len(got) != 0 {
		t.Errorf("chapters = %+v, want none", got)
	}
}

func TestHeadingKeywords(t *testing.T) {
	kws := headingKeywords("Introduction to Binary Search Trees")

	byWord := make(map[string]float64)
	for _, kw := range kws {
		byWord[kw.Word] = kw.Weight
	}
	if _, ok := byWord["introduction"]; ok {
		t.Error("stopword kept as keyword")
	}
	if _, ok := byWord["to"]; ok {
		t.Error("short word kept as keyword")
	}
	if byWord["binary"] != 1.0 || byWord["search"] != 1.0 {
		t.Errorf("long-word weights = %v", byWord)
	}
	if byWord["trees"] != 0.5 {
		t.Errorf("weight for trees = %v, want 0.5", byWord["trees"])
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine(sampleText); got != "CS 301: Algorithms and Data Structures" {
		t.Errorf("firstLine = %q", got)
	}
}
