// Command report_diff fetches the same session reports from two deployments
// and lists every student competence whose grades differ. It is used to
// review the effect of a grading policy change before it is rolled out.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/cbta-eval-api/internal/models"
)

type target struct {
	SessionID     string         `yaml:"session_id"`
	SafetyRatings map[string]int `yaml:"safety_ratings"`
	Critical      bool           `yaml:"critical"`
}

type targetFile struct {
	Targets []target `yaml:"targets"`
}

type gradeDiff struct {
	Student    string
	Competence models.Competence
	Field      string
	Baseline   int
	Candidate  int
}

type comparison struct {
	Target            target
	BaselineStatus    int
	CandidateStatus   int
	Diffs             []gradeDiff
	Error             error
	DurationBaseline  time.Duration
	DurationCandidate time.Duration
}

func (c comparison) differs() bool {
	return c.BaselineStatus != c.CandidateStatus || len(c.Diffs) > 0
}

type envelope struct {
	Data models.SessionReport `json:"data"`
}

func main() {
	var (
		baselineBase  string
		candidateBase string
		targetsPath   string
		token         string
		timeout       time.Duration
	)

	flag.StringVar(&baselineBase, "baseline", "http://localhost:8080/api/v1", "Baseline API base URL")
	flag.StringVar(&candidateBase, "candidate", "http://localhost:8081/api/v1", "Candidate API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "report_diff", "targets.yaml"), "Path to YAML targets file")
	flag.StringVar(&token, "token", os.Getenv("REPORT_DIFF_TOKEN"), "Bearer token accepted by both deployments")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)
	for _, t := range targets {
		comp := compareTarget(client, baselineBase, candidateBase, token, t)
		switch {
		case comp.Error != nil && t.Critical:
			breaking++
		case comp.Error == nil && comp.differs():
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	for i, t := range file.Targets {
		if strings.TrimSpace(t.SessionID) == "" {
			return nil, fmt.Errorf("target %d: session_id is required", i)
		}
	}
	return file.Targets, nil
}

func compareTarget(client *http.Client, baselineBase, candidateBase, token string, tgt target) comparison {
	comp := comparison{Target: tgt}

	baseline, status, dur, err := fetchReport(client, baselineBase, token, tgt)
	comp.BaselineStatus, comp.DurationBaseline = status, dur
	if err != nil {
		comp.Error = fmt.Errorf("baseline: %w", err)
		return comp
	}
	candidate, status, dur, err := fetchReport(client, candidateBase, token, tgt)
	comp.CandidateStatus, comp.DurationCandidate = status, dur
	if err != nil {
		comp.Error = fmt.Errorf("candidate: %w", err)
		return comp
	}

	comp.Diffs = diffReports(baseline, candidate)
	return comp
}

func reportURL(base string, tgt target) (string, error) {
	if base == "" {
		return "", errors.New("empty base url")
	}
	u := strings.TrimRight(base, "/") + "/sessions/" + url.PathEscape(tgt.SessionID) + "/report"
	if len(tgt.SafetyRatings) > 0 {
		raw, err := json.Marshal(tgt.SafetyRatings)
		if err != nil {
			return "", err
		}
		u += "?safety_scores=" + url.QueryEscape(string(raw))
	}
	return u, nil
}

func fetchReport(client *http.Client, base, token string, tgt target) (models.SessionReport, int, time.Duration, error) {
	u, err := reportURL(base, tgt)
	if err != nil {
		return nil, 0, 0, err
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()
	dur := time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, dur, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, dur, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, resp.StatusCode, dur, fmt.Errorf("decode report: %w", err)
	}
	return env.Data, resp.StatusCode, dur, nil
}

// diffReports compares grades only; observed behavior lists and processing
// metadata are ignored.
func diffReports(baseline, candidate models.SessionReport) []gradeDiff {
	students := map[string]struct{}{}
	for name := range baseline {
		students[name] = struct{}{}
	}
	for name := range candidate {
		students[name] = struct{}{}
	}
	names := make([]string, 0, len(students))
	for name := range students {
		names = append(names, name)
	}
	sort.Strings(names)

	var diffs []gradeDiff
	for _, name := range names {
		a, b := baseline[name].Report, candidate[name].Report
		for _, competence := range models.Competences() {
			ra, okA := a[competence]
			rb, okB := b[competence]
			if !okA && !okB {
				continue
			}
			fields := []struct {
				name string
				a, b int
			}{
				{"how_many", ra.HowMany, rb.HowMany},
				{"how_often", ra.HowOften, rb.HowOften},
				{"safety_score", ra.SafetyScore, rb.SafetyScore},
				{"final_grade", ra.FinalGrade, rb.FinalGrade},
			}
			for _, f := range fields {
				if f.a != f.b {
					diffs = append(diffs, gradeDiff{Student: name, Competence: competence, Field: f.name, Baseline: f.a, Candidate: f.b})
				}
			}
		}
	}
	return diffs
}

func printReport(results []comparison) {
	fmt.Println("Report Diff")
	fmt.Println("===========")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if res.differs() {
			status = "DIFF"
		}
		fmt.Printf("[%s] session %s\n", status, res.Target.SessionID)
		fmt.Printf("  Baseline: %d (%s) | Candidate: %d (%s)\n", res.BaselineStatus, res.DurationBaseline, res.CandidateStatus, res.DurationCandidate)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		for _, d := range res.Diffs {
			fmt.Printf("  %s %s %s: %d -> %d\n", d.Student, d.Competence, d.Field, d.Baseline, d.Candidate)
		}
	}
}
