package research

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCompilerSkipsFailedSections(t *testing.T) {
	sess := NewSession("s1", Request{Topic: "AI in Healthcare", Sections: []string{"Introduction", "Methods", "Conclusion"}})
	sess.Task("Introduction").Status = SectionCompleted
	sess.Task("Introduction").Content = "intro"
	sess.Task("Methods").Status = SectionFailed
	sess.Task("Conclusion").Status = SectionCompleted
	sess.Task("Conclusion").Content = "conclusion"

	var gotTitles []string
	c := NewCompiler(AssemblerFunc(func(ctx context.Context, topic, guidelines string, sections []*SectionTask) (string, error) {
		for _, s := range sections {
			gotTitles = append(gotTitles, s.Title)
		}
		return "report", nil
	}), time.Second)

	report, err := c.Compile(context.Background(), sess)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if report != "report" {
		t.Errorf("report = %q", report)
	}
	if len(gotTitles) != 2 || gotTitles[0] != "Introduction" || gotTitles[1] != "Conclusion" {
		t.Errorf("assembled sections = %v, want [Introduction Conclusion]", gotTitles)
	}
}

func TestCompilerNoCompletedSections(t *testing.T) {
	sess := NewSession("s1", Request{Topic: "AI in Healthcare", Sections: []string{"Introduction"}})
	sess.Task("Introduction").Status = SectionFailed

	called := false
	c := NewCompiler(AssemblerFunc(func(ctx context.Context, topic, guidelines string, sections []*SectionTask) (string, error) {
		called = true
		return "", nil
	}), time.Second)

	_, err := c.Compile(context.Background(), sess)
	if !errors.Is(err, ErrNoCompletedSections) {
		t.Errorf("Compile() error = %v, want ErrNoCompletedSections", err)
	}
	if called {
		t.Error("assembler invoked with zero completed sections")
	}
}

func TestCompilerAssemblyFailure(t *testing.T) {
	sess := NewSession("s1", Request{Topic: "AI in Healthcare", Sections: []string{"Introduction"}})
	sess.Task("Introduction").Status = SectionCompleted

	c := NewCompiler(AssemblerFunc(func(ctx context.Context, topic, guidelines string, sections []*SectionTask) (string, error) {
		return "", errors.New("model overloaded")
	}), time.Second)

	_, err := c.Compile(context.Background(), sess)
	if err == nil {
		t.Fatal("Compile() error = nil, want assembly failure")
	}
}
