package model

import (
	"fmt"
	"math"
)

// Kind identifies the model family of a Document.
type Kind string

const (
	KindLinear Kind = "linear"
	KindTree   Kind = "tree"
)

// Document is the serialized form of a model artifact.
type Document struct {
	Kind Kind `json:"kind" yaml:"kind" jsonschema:"enum=linear,enum=tree"`
	// NFeaturesIn is the number of input features. 0 means undeclared; linear
	// models then infer it from their coefficients.
	NFeaturesIn int `json:"n_features_in,omitempty" yaml:"n_features_in,omitempty" jsonschema:"minimum=0"`
	// Classes maps output indices to labels for classifiers.
	Classes []float64 `json:"classes,omitempty" yaml:"classes,omitempty"`
	Linear  *Linear   `json:"linear,omitempty" yaml:"linear,omitempty"`
	Tree    *Tree     `json:"tree,omitempty" yaml:"tree,omitempty"`
}

// Linear holds one coefficient row per output.
//
// A single row is a regressor, or a binary classifier when two Classes are
// set. Several rows are a multi-class classifier returning the argmax.
type Linear struct {
	Coef      [][]float64 `json:"coef" yaml:"coef" jsonschema:"minItems=1"`
	Intercept []float64   `json:"intercept,omitempty" yaml:"intercept,omitempty"`
}

// Tree is a binary decision tree. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes" yaml:"nodes" jsonschema:"minItems=1"`
}

// Node is a split or a leaf.
//
// Samples with x[Feature] <= Threshold go Left, others go Right. A leaf has
// Left == -1 and carries Value: a single regression output, or per-class
// scores of which the argmax wins.
type Node struct {
	Feature   int       `json:"feature" yaml:"feature"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Left      int       `json:"left" yaml:"left"`
	Right     int       `json:"right" yaml:"right"`
	Value     []float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

func (n *Node) isLeaf() bool {
	return n.Left == -1
}

// Validate checks the document describes a usable model.
func (d *Document) Validate() error {
	if d.NFeaturesIn < 0 {
		return fmt.Errorf("%w: negative n_features_in", ErrInvalidDocument)
	}
	switch d.Kind {
	case KindLinear:
		if d.Linear == nil {
			return fmt.Errorf("%w: linear model without coefficients", ErrInvalidDocument)
		}
		return d.validateLinear()
	case KindTree:
		if d.Tree == nil {
			return fmt.Errorf("%w: tree model without nodes", ErrInvalidDocument)
		}
		return d.validateTree()
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDocument, d.Kind)
	}
}

func (d *Document) validateLinear() error {
	l := d.Linear
	if len(l.Coef) == 0 || len(l.Coef[0]) == 0 {
		return fmt.Errorf("%w: empty coefficient matrix", ErrInvalidDocument)
	}
	width := len(l.Coef[0])
	for i, row := range l.Coef {
		if len(row) != width {
			return fmt.Errorf("%w: coefficient row %d has %d values, want %d", ErrInvalidDocument, i, len(row), width)
		}
	}
	if d.NFeaturesIn != 0 && d.NFeaturesIn != width {
		return fmt.Errorf("%w: n_features_in is %d but coefficients have %d columns", ErrInvalidDocument, d.NFeaturesIn, width)
	}
	if len(l.Intercept) != 0 && len(l.Intercept) != len(l.Coef) {
		return fmt.Errorf("%w: %d intercepts for %d coefficient rows", ErrInvalidDocument, len(l.Intercept), len(l.Coef))
	}
	switch {
	case len(l.Coef) == 1:
		if len(d.Classes) != 0 && len(d.Classes) != 2 {
			return fmt.Errorf("%w: single row model needs 0 or 2 classes, got %d", ErrInvalidDocument, len(d.Classes))
		}
	case len(d.Classes) != 0 && len(d.Classes) != len(l.Coef):
		return fmt.Errorf("%w: %d classes for %d coefficient rows", ErrInvalidDocument, len(d.Classes), len(l.Coef))
	}
	return nil
}

func (d *Document) validateTree() error {
	nodes := d.Tree.Nodes
	if len(nodes) == 0 {
		return fmt.Errorf("%w: empty tree", ErrInvalidDocument)
	}
	for i := range nodes {
		n := &nodes[i]
		if n.isLeaf() {
			if len(n.Value) == 0 {
				return fmt.Errorf("%w: leaf %d has no value", ErrInvalidDocument, i)
			}
			if len(n.Value) > 1 && len(d.Classes) != 0 && len(d.Classes) != len(n.Value) {
				return fmt.Errorf("%w: leaf %d has %d scores for %d classes", ErrInvalidDocument, i, len(n.Value), len(d.Classes))
			}
			continue
		}
		// Children always follow their parent, which rules out cycles.
		if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
			return fmt.Errorf("%w: node %d has invalid children %d, %d", ErrInvalidDocument, i, n.Left, n.Right)
		}
		if n.Feature < 0 || (d.NFeaturesIn != 0 && n.Feature >= d.NFeaturesIn) {
			return fmt.Errorf("%w: node %d splits on feature %d", ErrInvalidDocument, i, n.Feature)
		}
	}
	return nil
}

// ExpectedInputSize implements Model.
func (d *Document) ExpectedInputSize() (int, bool) {
	if d.NFeaturesIn > 0 {
		return d.NFeaturesIn, true
	}
	if d.Kind == KindLinear && d.Linear != nil && len(d.Linear.Coef) > 0 {
		return len(d.Linear.Coef[0]), true
	}
	return 0, false
}

// Predict implements Model.
func (d *Document) Predict(batch [][]float64) ([]float64, error) {
	out := make([]float64, len(batch))
	for i, x := range batch {
		var err error
		switch d.Kind {
		case KindLinear:
			out[i], err = d.predictLinear(x)
		case KindTree:
			out[i], err = d.predictTree(x)
		default:
			err = fmt.Errorf("%w: unknown kind %q", ErrInvalidDocument, d.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return out, nil
}

func (d *Document) predictLinear(x []float64) (float64, error) {
	l := d.Linear
	if len(x) != len(l.Coef[0]) {
		return 0, fmt.Errorf("got %d features, want %d", len(x), len(l.Coef[0]))
	}
	scores := make([]float64, len(l.Coef))
	for k, row := range l.Coef {
		s := 0.
		if len(l.Intercept) != 0 {
			s = l.Intercept[k]
		}
		for j, c := range row {
			s += c * x[j]
		}
		scores[k] = s
	}
	if len(scores) == 1 {
		if len(d.Classes) == 2 {
			if scores[0] > 0 {
				return d.Classes[1], nil
			}
			return d.Classes[0], nil
		}
		return scores[0], nil
	}
	return d.label(argmax(scores)), nil
}

func (d *Document) predictTree(x []float64) (float64, error) {
	nodes := d.Tree.Nodes
	i := 0
	for !nodes[i].isLeaf() {
		n := &nodes[i]
		if n.Feature >= len(x) {
			return 0, fmt.Errorf("node %d splits on feature %d but sample has %d features", i, n.Feature, len(x))
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	v := nodes[i].Value
	if len(v) == 1 {
		return v[0], nil
	}
	return d.label(argmax(v)), nil
}

func (d *Document) label(i int) float64 {
	if len(d.Classes) != 0 {
		return d.Classes[i]
	}
	return float64(i)
}

func argmax(v []float64) int {
	best, bestV := 0, math.Inf(-1)
	for i, x := range v {
		if x > bestV {
			best, bestV = i, x
		}
	}
	return best
}
