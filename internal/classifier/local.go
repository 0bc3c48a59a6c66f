package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/cybertron/pkg/tasks"
	"github.com/nlpodyssey/cybertron/pkg/tasks/textclassification"
)

// spam-positive labels across the common fine-tuned spam detection models
var spamLabels = map[string]struct{}{
	"spam":     {},
	"phishing": {},
	"label_1":  {},
}

// LocalModel scores with an in-process transformer classifier, no network
// calls after the initial model download.
type LocalModel struct {
	model textclassification.Interface
}

func NewLocalModel(modelsDir, modelName string) (*LocalModel, error) {
	model, err := tasks.Load[textclassification.Interface](&tasks.Config{
		ModelsDir:           modelsDir,
		ModelName:           modelName,
		DownloadPolicy:      tasks.DownloadMissing,
		ConversionPolicy:    tasks.ConvertMissing,
		ConversionPrecision: tasks.F32,
	})
	if err != nil {
		return nil, fmt.Errorf("load classification model %q: %w", modelName, err)
	}
	return &LocalModel{model: model}, nil
}

// Probability sums the scores of spam-positive labels in the predicted
// distribution.
func (m *LocalModel) Probability(ctx context.Context, text string) (float64, error) {
	result, err := m.model.Classify(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("classify: %w", err)
	}
	if len(result.Labels) == 0 || len(result.Labels) != len(result.Scores) {
		return 0, fmt.Errorf("malformed classification result: %d labels, %d scores", len(result.Labels), len(result.Scores))
	}

	prob := 0.0
	for i, label := range result.Labels {
		if _, ok := spamLabels[strings.ToLower(label)]; ok {
			prob += result.Scores[i]
		}
	}
	return prob, nil
}

// Binary takes the argmax label, ignoring the score distribution.
func (m *LocalModel) Binary(ctx context.Context, text string) (bool, error) {
	result, err := m.model.Classify(ctx, text)
	if err != nil {
		return false, fmt.Errorf("classify: %w", err)
	}
	best, bestScore := "", -1.0
	for i, label := range result.Labels {
		if i < len(result.Scores) && result.Scores[i] > bestScore {
			best, bestScore = label, result.Scores[i]
		}
	}
	if best == "" {
		return false, fmt.Errorf("empty classification result")
	}
	_, spam := spamLabels[strings.ToLower(best)]
	return spam, nil
}
