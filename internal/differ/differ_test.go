package differ

import (
	"os"
	"path/filepath"
	"testing"

	wetwire "github.com/lex00/wetwire-aws-local"
)

func route(path, fn string, methods ...string) wetwire.Route {
	return wetwire.Route{Path: path, FunctionName: fn, Methods: methods, EventType: wetwire.EventTypeRest}
}

func TestCompare(t *testing.T) {
	before := wetwire.NewApi([]wetwire.Route{
		route("/a", "A", "GET"),
		route("/b", "B", "GET"),
	}, nil, nil, "", nil)
	after := wetwire.NewApi([]wetwire.Route{
		route("/a", "A2", "GET"),
		route("/c", "C", "POST"),
	}, nil, nil, "", nil)

	result := Compare(before, after, Options{})

	// GET /b was removed
	if len(result.Diff.Removed) != 1 {
		t.Errorf("Removed = %d, want 1", len(result.Diff.Removed))
	} else if result.Diff.Removed[0].Route != "GET /b" {
		t.Errorf("Removed[0].Route = %s, want GET /b", result.Diff.Removed[0].Route)
	}

	// POST /c was added
	if len(result.Diff.Added) != 1 {
		t.Errorf("Added = %d, want 1", len(result.Diff.Added))
	} else if result.Diff.Added[0].Route != "POST /c" {
		t.Errorf("Added[0].Route = %s, want POST /c", result.Diff.Added[0].Route)
	}

	// GET /a now points at another function
	if len(result.Diff.Modified) != 1 {
		t.Errorf("Modified = %d, want 1", len(result.Diff.Modified))
	} else {
		m := result.Diff.Modified[0]
		if m.Route != "GET /a" {
			t.Errorf("Modified[0].Route = %s, want GET /a", m.Route)
		}
		if len(m.Changes) != 1 || m.Changes[0] != "function changed: A → A2" {
			t.Errorf("Modified[0].Changes = %v", m.Changes)
		}
	}

	if result.Summary.Total != 3 {
		t.Errorf("Summary.Total = %d, want 3", result.Summary.Total)
	}
}

func TestCompareIdentical(t *testing.T) {
	api := wetwire.NewApi([]wetwire.Route{route("/a", "A", "GET", "POST")}, &wetwire.Cors{AllowOrigin: "*"}, []string{"image/png"}, "Prod", nil)

	result := Compare(api, api, Options{})
	if !result.Empty() {
		t.Errorf("Summary.Total = %d, want 0 for identical tables", result.Summary.Total)
	}
}

func TestCompareApiSettings(t *testing.T) {
	before := wetwire.NewApi(nil, nil, nil, "Prod", nil)
	after := wetwire.NewApi(nil, &wetwire.Cors{AllowOrigin: "*"}, []string{"image/png"}, "dev", map[string]string{"v": "1"})

	result := Compare(before, after, Options{})
	if len(result.Diff.Modified) != 1 {
		t.Fatalf("Modified = %d, want 1", len(result.Diff.Modified))
	}
	entry := result.Diff.Modified[0]
	if entry.Route != apiEntry {
		t.Errorf("Route = %s, want %s", entry.Route, apiEntry)
	}
	if len(entry.Changes) != 4 {
		t.Errorf("Changes = %v, want 4 entries", entry.Changes)
	}
}

func TestCompareIgnoreStackPath(t *testing.T) {
	r1 := route("/a", "Fn", "GET")
	r2 := route("/a", "Fn", "GET")
	r2.StackPath = "Nested"

	before := wetwire.NewApi([]wetwire.Route{r1}, nil, nil, "", nil)
	after := wetwire.NewApi([]wetwire.Route{r2}, nil, nil, "", nil)

	if Compare(before, after, Options{}).Empty() {
		t.Error("expected a stackPath change")
	}
	if !Compare(before, after, Options{IgnoreStackPath: true}).Empty() {
		t.Error("expected no change when ignoring stack paths")
	}
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	t1 := `Transform: AWS::Serverless-2016-10-31
Resources:
  HelloFunction:
    Type: AWS::Serverless::Function
    Properties:
      Handler: main
      Events:
        Hello:
          Type: Api
          Properties:
            Path: /hello
            Method: get
`
	t2 := `Transform: AWS::Serverless-2016-10-31
Resources:
  HelloFunction:
    Type: AWS::Serverless::Function
    Properties:
      Handler: main
      Events:
        Hello:
          Type: Api
          Properties:
            Path: /hello
            Method: post
`
	f1 := filepath.Join(dir, "a.yaml")
	f2 := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(f1, []byte(t1), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f2, []byte(t2), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := CompareFiles(f1, f2, Options{})
	if err != nil {
		t.Fatalf("CompareFiles() error = %v", err)
	}
	if result.Summary.Added != 1 || result.Summary.Removed != 1 {
		t.Errorf("Summary = %+v, want 1 added and 1 removed", result.Summary)
	}

	if _, err := CompareFiles(filepath.Join(dir, "missing.yaml"), f2, Options{}); err == nil {
		t.Error("expected error for a missing template")
	}
}
