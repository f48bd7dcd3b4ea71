package ecalveto

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"gonum.org/v1/gonum/mat"
)

// Params are the boosting hyperparameters.
type Params struct {
	Objective           string  `yaml:"objective"`
	Eta                 float64 `yaml:"eta"`
	MaxDepth            int     `yaml:"max_depth"`
	MinChildWeight      float64 `yaml:"min_child_weight"`
	Subsample           float64 `yaml:"subsample"`
	ColsampleByTree     float64 `yaml:"colsample_bytree"`
	EvalMetric          string  `yaml:"eval_metric"`
	Seed                int     `yaml:"seed"`
	NThread             int     `yaml:"nthread"`
	NumRounds           int     `yaml:"num_round"`
	EarlyStoppingRounds int     `yaml:"early_stopping_rounds"`
}

func DefaultParams() Params {
	return Params{
		Objective:           "binary:logistic",
		Eta:                 0.023,
		MaxDepth:            10,
		MinChildWeight:      20,
		Subsample:           0.9,
		ColsampleByTree:     0.85,
		EvalMetric:          "error",
		Seed:                1,
		NThread:             1,
		NumRounds:           1000,
		EarlyStoppingRounds: 20,
	}
}

func (p Params) Validate() error {
	switch {
	case p.Eta <= 0:
		return fmt.Errorf("eta must be positive, got %v", p.Eta)
	case p.MaxDepth <= 0:
		return fmt.Errorf("max depth must be positive, got %d", p.MaxDepth)
	case p.NumRounds <= 0:
		return fmt.Errorf("number of rounds must be positive, got %d", p.NumRounds)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("subsample must be in (0, 1], got %v", p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return fmt.Errorf("colsample_bytree must be in (0, 1], got %v", p.ColsampleByTree)
	case p.EarlyStoppingRounds < 0:
		return fmt.Errorf("early stopping rounds must not be negative, got %d", p.EarlyStoppingRounds)
	}
	return nil
}

// maximize reports whether a larger value of the eval metric is better.
func (p Params) maximize() bool {
	switch {
	case p.EvalMetric == "auc", p.EvalMetric == "aucpr",
		strings.HasPrefix(p.EvalMetric, "map"), strings.HasPrefix(p.EvalMetric, "ndcg"):
		return true
	}
	return false
}

// TrainResult describes the artifacts of a training run.
type TrainResult struct {
	ModelPath string
	DumpPath  string
	// Scores holds the eval metric on the test set, per boosting round.
	Scores        []float64
	BestIteration int
}

// Booster trains a model on set, writing its artifacts in dir with the
// given file stem.
type Booster interface {
	Train(ctx context.Context, set *TrainingSet, p Params, dir, stem string) (*TrainResult, error)
}

// XGBoostCLI trains with the xgboost command line program.
type XGBoostCLI struct {
	Binary string
	// Log receives the program output as it runs; nil discards it.
	Log io.Writer
}

func (x *XGBoostCLI) binary() string {
	if x.Binary == "" {
		return "xgboost"
	}
	return x.Binary
}

func (x *XGBoostCLI) Train(ctx context.Context, set *TrainingSet, p Params, dir, stem string) (*TrainResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	// the program runs inside dir
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	train := filepath.Join(dir, stem+"_train.libsvm")
	test := filepath.Join(dir, stem+"_test.libsvm")
	if err := WriteLibSVM(train, set.XTrain, set.YTrain); err != nil {
		return nil, err
	}
	if err := WriteLibSVM(test, set.XTest, set.YTest); err != nil {
		return nil, err
	}

	res := &TrainResult{
		ModelPath: filepath.Join(dir, stem+"_weights.model"),
		DumpPath:  filepath.Join(dir, stem+"_dump.txt"),
	}
	conf := filepath.Join(dir, stem+".conf")
	if err := os.WriteFile(conf, []byte(xgboostConfig(p, train, test, res.ModelPath)), 0o644); err != nil {
		return nil, fmt.Errorf("could not write xgboost config: %w", err)
	}

	out, err := x.run(ctx, dir, conf)
	if err != nil {
		return nil, fmt.Errorf("xgboost training failed: %w", err)
	}
	res.Scores, err = ParseEvalLog(bytes.NewReader(out), "test", p.EvalMetric)
	if err != nil {
		return nil, err
	}
	res.BestIteration = BestIteration(res.Scores, p.EarlyStoppingRounds, p.maximize())

	if _, err := x.run(ctx, dir, conf,
		"task=dump",
		"model_in="+res.ModelPath,
		"name_dump="+res.DumpPath,
	); err != nil {
		return nil, fmt.Errorf("xgboost model dump failed: %w", err)
	}
	return res, nil
}

func (x *XGBoostCLI) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	w := io.Writer(&buf)
	if x.Log != nil {
		w = io.MultiWriter(&buf, x.Log)
	}
	cmd := exec.CommandContext(ctx, x.binary(), args...)
	cmd.Dir = dir
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Run(); err != nil {
		return buf.Bytes(), fmt.Errorf("%s %s: %w", x.binary(), strings.Join(args, " "), err)
	}
	return buf.Bytes(), nil
}

func xgboostConfig(p Params, train, test, model string) string {
	var b strings.Builder
	kv := func(k string, v any) { fmt.Fprintf(&b, "%s = %v\n", k, v) }
	kv("booster", "gbtree")
	kv("objective", p.Objective)
	kv("eta", p.Eta)
	kv("max_depth", p.MaxDepth)
	kv("min_child_weight", p.MinChildWeight)
	kv("subsample", p.Subsample)
	kv("colsample_bytree", p.ColsampleByTree)
	kv("eval_metric", p.EvalMetric)
	kv("seed", p.Seed)
	kv("nthread", p.NThread)
	kv("num_round", p.NumRounds)
	kv("save_period", 0)
	kv("data", strconv.Quote(train+"?format=libsvm"))
	kv("eval[test]", strconv.Quote(test+"?format=libsvm"))
	kv("model_out", strconv.Quote(model))
	return b.String()
}

// WriteLibSVM writes labels and dense rows in LibSVM text format. Zeros are
// written explicitly since a missing entry means "missing" to the booster.
func WriteLibSVM(fname string, x mat.Matrix, y []float64) error {
	r, c := x.Dims()
	if r != len(y) {
		return fmt.Errorf("%d rows but %d labels", r, len(y))
	}
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", fname, err)
	}
	w := bufio.NewWriter(f)
	for i := 0; i < r; i++ {
		w.WriteString(strconv.FormatFloat(y[i], 'g', -1, 64))
		for j := 0; j < c; j++ {
			fmt.Fprintf(w, " %d:%s", j, strconv.FormatFloat(x.At(i, j), 'g', -1, 64))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("could not write %q: %w", fname, err)
	}
	return f.Close()
}

var evalLine = regexp.MustCompile(`^\[(\d+)\]\s+(.*)$`)

// ParseEvalLog extracts the <set>-<metric> value of each boosting round from
// the trainer output, e.g. "[3]	test-error:0.0125	train-error:0.011".
func ParseEvalLog(r io.Reader, set, metric string) ([]float64, error) {
	key := set + "-" + metric + ":"
	var scores []float64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		// strip a leading timestamp, "[12:01:02] [3]	test-error:..."
		if i := strings.Index(line, "] ["); i >= 0 {
			line = line[i+2:]
		}
		m := evalLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		round, _ := strconv.Atoi(m[1])
		for _, field := range strings.Fields(m[2]) {
			if !strings.HasPrefix(field, key) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimPrefix(field, key), 64)
			if err != nil {
				return nil, fmt.Errorf("bad eval value %q in round %d: %w", field, round, err)
			}
			if round != len(scores) {
				return nil, fmt.Errorf("eval log out of order: round %d after %d rounds", round, len(scores))
			}
			scores = append(scores, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("no %q values in trainer output", key[:len(key)-1])
	}
	return scores, nil
}

// BestIteration applies early stopping to per-round scores: training stops
// once the score did not improve for patience rounds, and the best round
// seen so far is returned. patience == 0 disables early stopping.
func BestIteration(scores []float64, patience int, maximize bool) int {
	if len(scores) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if patience > 0 && i-best > patience {
			break
		}
		if (maximize && scores[i] > scores[best]) || (!maximize && scores[i] < scores[best]) {
			best = i
		}
	}
	if patience == 0 {
		return len(scores) - 1
	}
	return best
}

// NextRunDir creates and returns the first unused directory prefix_0,
// prefix_1, ...
func NextRunDir(prefix string) (string, int, error) {
	if parent := filepath.Dir(prefix); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", 0, fmt.Errorf("could not create %q: %w", parent, err)
		}
	}
	for n := 0; ; n++ {
		dir := prefix + "_" + strconv.Itoa(n)
		err := os.Mkdir(dir, 0o755)
		switch {
		case err == nil:
			return dir, n, nil
		case errors.Is(err, os.ErrExist):
			continue
		default:
			return "", 0, fmt.Errorf("could not create run directory: %w", err)
		}
	}
}

// ModelCard records how a model was trained. It is stored next to the model
// and checked when the model is loaded.
type ModelCard struct {
	Variant       string   `yaml:"variant"`
	Features      []string `yaml:"features"`
	Params        Params   `yaml:"params"`
	Seed          uint64   `yaml:"seed"`
	TrainFrac     float64  `yaml:"train_frac"`
	NTrain        int      `yaml:"n_train"`
	NTest         int      `yaml:"n_test"`
	Rounds        int      `yaml:"rounds"`
	BestIteration int      `yaml:"best_iteration"`
	TestAUC       float64  `yaml:"test_auc"`
}

// NEstimators is the number of trees to score with.
func (c *ModelCard) NEstimators() int {
	if c.BestIteration < 0 {
		return 0
	}
	return c.BestIteration + 1
}

// Check verifies that the model was trained on the columns of v, in order.
func (c *ModelCard) Check(v *Variant) error {
	if c.Variant != v.Name {
		return fmt.Errorf("model trained for variant %q, not %q", c.Variant, v.Name)
	}
	names := v.ModelSchema().Names()
	if len(c.Features) != len(names) {
		return fmt.Errorf("model trained on %d features, variant %q has %d", len(c.Features), v.Name, len(names))
	}
	for i, name := range names {
		if c.Features[i] != name {
			return fmt.Errorf("model column %d is %q, variant %q expects %q", i, c.Features[i], v.Name, name)
		}
	}
	return nil
}

const (
	weightsSuffix = "_weights.model"
	cardSuffix    = "_card.yaml"
)

// CardPath returns the model card path of a model file.
func CardPath(model string) string {
	return strings.TrimSuffix(model, weightsSuffix) + cardSuffix
}

func WriteModelCard(fname string, c *ModelCard) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("could not encode model card: %w", err)
	}
	if err := os.WriteFile(fname, raw, 0o644); err != nil {
		return fmt.Errorf("could not write model card: %w", err)
	}
	return nil
}

func ReadModelCard(fname string) (*ModelCard, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("could not read model card: %w", err)
	}
	var c ModelCard
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("could not decode model card %q: %w", fname, err)
	}
	return &c, nil
}
