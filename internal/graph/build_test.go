package graph

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/airpipe/internal/catalog"
	"github.com/vk/airpipe/internal/ctxlog"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func parsePipeline(t *testing.T, src string) *catalog.Pipeline {
	t.Helper()
	cat, err := catalog.Parse([]byte(src), "test.hcl")
	require.NoError(t, err)
	require.Len(t, cat.Pipelines, 1)
	for _, p := range cat.Pipelines {
		return p
	}
	return nil
}

func TestBuild_LinksDataAndOrderingEdges(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := parsePipeline(t, `
pipeline "p" {
  input "table" {}

  step "download" {
    run = "dl"
    output "data" {
      glob = "*.csv"
    }
  }

  step "ingest" {
    run = "ingest"
    arg "data" {
      from = step.download.data
    }
    output "log" {
      capture = "stdout"
    }
  }

  step "index" {
    run        = "index"
    depends_on = ["ingest"]
    arg "table" {
      from = input.table
    }
    output "log" {
      capture = "stdout"
    }
  }
}
`)

	// --- Act ---
	g, err := Build(testContext(t), p)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)

	ingest := g.Nodes["ingest"]
	require.Contains(t, ingest.Deps, "download")
	assert.True(t, ingest.DataDeps["download"], "The expression-derived edge carries data")

	index := g.Nodes["index"]
	require.Contains(t, index.Deps, "ingest")
	assert.False(t, index.DataDeps["ingest"], "depends_on edges are ordering-only")
	assert.Contains(t, g.Nodes["ingest"].Dependents, "index")

	order := g.TopologicalOrder()
	assert.Equal(t, []string{"download", "ingest", "index"}, order)
}

func TestBuild_TopologicalOrderRespectsAllEdges(t *testing.T) {
	t.Parallel()

	p := parsePipeline(t, `
pipeline "p" {
  step "a" {
    run = "t"
    output "x" {
      glob = "*"
    }
  }
  step "b" {
    run = "t"
    arg "x" {
      from = step.a.x
    }
    output "y" {
      glob = "*"
    }
  }
  step "c" {
    run = "t"
    arg "x" {
      from = step.a.x
    }
    arg "y" {
      from = step.b.y
    }
    output "log" {
      capture = "stdout"
    }
  }
}
`)

	g, err := Build(testContext(t), p)
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, id := range g.TopologicalOrder() {
		pos[id] = i
	}
	for id, node := range g.Nodes {
		for depID := range node.Deps {
			assert.Less(t, pos[depID], pos[id], "%s must order after its dependency %s", id, depID)
		}
	}
}

func TestBuild_DetectsCycles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A mixed cycle: one data edge, one ordering edge.
	p := parsePipeline(t, `
pipeline "p" {
  step "a" {
    run        = "t"
    depends_on = ["b"]
    output "x" {
      glob = "*"
    }
  }
  step "b" {
    run = "t"
    arg "x" {
      from = step.a.x
    }
    output "log" {
      capture = "stdout"
    }
  }
}
`)

	// --- Act ---
	_, err := Build(testContext(t), p)

	// --- Assert ---
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "cycle detected")
	assert.Len(t, ve.Findings, 1, "One cycle yields one finding, not one per member: %v", ve.Findings)
}

func TestBuild_ReportsEachCycleOnce(t *testing.T) {
	t.Parallel()

	// Two disjoint two-step cycles plus an unrelated valid step.
	p := parsePipeline(t, `
pipeline "p" {
  step "a" {
    run        = "t"
    depends_on = ["b"]
    output "log" {
      capture = "stdout"
    }
  }
  step "b" {
    run        = "t"
    depends_on = ["a"]
    output "log" {
      capture = "stdout"
    }
  }
  step "c" {
    run        = "t"
    depends_on = ["d"]
    output "log" {
      capture = "stdout"
    }
  }
  step "d" {
    run        = "t"
    depends_on = ["c"]
    output "log" {
      capture = "stdout"
    }
  }
  step "e" {
    run = "t"
    output "log" {
      capture = "stdout"
    }
  }
}
`)

	_, err := Build(testContext(t), p)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Findings, 2, "Each distinct cycle surfaces exactly once: %v", ve.Findings)
	for _, f := range ve.Findings {
		assert.Contains(t, f.Detail, "cycle detected")
	}
}

func TestBuild_AggregatesAllFindings(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Several independent problems: a self-dependency, an unknown step
	// reference, an undeclared output reference, and an undeclared input.
	p := parsePipeline(t, `
pipeline "p" {
  step "a" {
    run        = "t"
    depends_on = ["a"]
    output "x" {
      glob = "*"
    }
  }
  step "b" {
    run = "t"
    arg "one" {
      from = step.ghost.out
    }
    arg "two" {
      from = step.a.missing
    }
    env "P" {
      from = input.ghost
    }
    output "log" {
      capture = "stdout"
    }
  }
}
`)

	// --- Act ---
	_, err := Build(testContext(t), p)

	// --- Assert ---
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Findings, 4, "Every problem must surface in one pass: %v", ve.Findings)

	msg := ve.Error()
	assert.Contains(t, msg, "depends on itself")
	assert.Contains(t, msg, `unknown step "ghost"`)
	assert.Contains(t, msg, `undeclared output "missing"`)
	assert.Contains(t, msg, `undeclared pipeline input "ghost"`)
}

func TestBuild_DuplicateStepAndOutputNames(t *testing.T) {
	t.Parallel()

	p := parsePipeline(t, `
pipeline "p" {
  step "a" {
    run = "t"
    output "x" {
      glob = "*"
    }
    output "x" {
      capture = "stdout"
    }
  }
  step "a" {
    run = "t"
    output "log" {
      capture = "stdout"
    }
  }
}
`)

	_, err := Build(testContext(t), p)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	msg := ve.Error()
	assert.Contains(t, msg, "duplicate step name")
	assert.Contains(t, msg, "duplicate output name")
}

func TestBuild_RejectsDottedLabels(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// "a.b" + output "c" would share the pool key "a.b.c" with "a" +
	// output "b.c"; both spellings must be rejected before anything runs.
	p := parsePipeline(t, `
pipeline "p" {
  step "a.b" {
    run = "t"
    output "c" {
      glob = "*"
    }
  }
  step "a" {
    run = "t"
    output "b.c" {
      glob = "*"
    }
  }
}
`)

	// --- Act ---
	_, err := Build(testContext(t), p)

	// --- Assert ---
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Findings, 2, "findings: %v", ve.Findings)

	msg := ve.Error()
	assert.Contains(t, msg, "step name must not contain '.'")
	assert.Contains(t, msg, "output name must not contain '.'")
}

func TestBuild_ValidatesPipelineOutputs(t *testing.T) {
	t.Parallel()

	p := parsePipeline(t, `
pipeline "p" {
  input "from" {}

  step "a" {
    run = "t"
    output "x" {
      glob = "*"
    }
  }

  output "good" {
    from = step.a.x
  }
  output "no_output" {
    from = step.a
  }
  output "bad_step" {
    from = step.ghost.x
  }
  output "bad_output" {
    from = step.a.missing
  }
  output "good" {
    from = step.a.x
  }
}
`)

	_, err := Build(testContext(t), p)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	msg := ve.Error()
	assert.Contains(t, msg, "exactly one step output")
	assert.Contains(t, msg, `unknown step "ghost"`)
	assert.Contains(t, msg, `undeclared output "missing"`)
	assert.Contains(t, msg, "duplicate pipeline output name")
}

func TestBuild_SelfOutputReference(t *testing.T) {
	t.Parallel()

	p := parsePipeline(t, `
pipeline "p" {
  step "a" {
    run = "t"
    arg "x" {
      from = step.a.x
    }
    output "x" {
      glob = "*"
    }
  }
}
`)

	_, err := Build(testContext(t), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references its own output")
}
