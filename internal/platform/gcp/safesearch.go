package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// Likelihood mirrors the Vision API likelihood scale.
type Likelihood int

const (
	LikelihoodUnknown Likelihood = iota
	VeryUnlikely
	Unlikely
	Possible
	Likely
	VeryLikely
)

func (l Likelihood) String() string {
	switch l {
	case VeryUnlikely:
		return "very_unlikely"
	case Unlikely:
		return "unlikely"
	case Possible:
		return "possible"
	case Likely:
		return "likely"
	case VeryLikely:
		return "very_likely"
	default:
		return "unknown"
	}
}

type SafeSearchResult struct {
	Adult    Likelihood `json:"adult"`
	Violence Likelihood `json:"violence"`
	Racy     Likelihood `json:"racy"`
	Medical  Likelihood `json:"medical"`
	Spoof    Likelihood `json:"spoof"`
}

// Worst returns the highest likelihood among the moderation-relevant
// categories and the category name.
func (r SafeSearchResult) Worst() (Likelihood, string) {
	worst, name := r.Adult, "adult"
	if r.Violence > worst {
		worst, name = r.Violence, "violence"
	}
	if r.Racy > worst {
		worst, name = r.Racy, "racy"
	}
	return worst, name
}

type SafeSearch interface {
	DetectSafeSearch(ctx context.Context, imageURL string) (SafeSearchResult, error)
	Close() error
}

type safeSearchService struct {
	log     *logger.Logger
	client  *vision.ImageAnnotatorClient
	timeout time.Duration
}

func NewSafeSearch(ctx context.Context, log *logger.Logger) (SafeSearch, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := vision.NewImageAnnotatorClient(ctxutil.Default(ctx), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &safeSearchService{
		log:     log.With("service", "gcp.SafeSearch"),
		client:  c,
		timeout: 20 * time.Second,
	}, nil
}

func (s *safeSearchService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *safeSearchService) DetectSafeSearch(ctx context.Context, imageURL string) (SafeSearchResult, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return SafeSearchResult{}, fmt.Errorf("image url required")
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), s.timeout)
	defer cancel()

	img := &visionpb.Image{Source: &visionpb.ImageSource{ImageUri: imageURL}}
	if strings.HasPrefix(imageURL, "gs://") {
		img.Source = &visionpb.ImageSource{GcsImageUri: imageURL}
	}
	req := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{{
		Image:    img,
		Features: []*visionpb.Feature{{Type: visionpb.Feature_SAFE_SEARCH_DETECTION}},
	}}}
	resp, err := s.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return SafeSearchResult{}, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return SafeSearchResult{}, fmt.Errorf("vision: empty response")
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return SafeSearchResult{}, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	out := fromAnnotation(r0.GetSafeSearchAnnotation())
	worst, category := out.Worst()
	s.log.Debug("SafeSearch annotated", "worst", worst.String(), "category", category)
	return out, nil
}

func fromAnnotation(a *visionpb.SafeSearchAnnotation) SafeSearchResult {
	if a == nil {
		return SafeSearchResult{}
	}
	return SafeSearchResult{
		Adult:    Likelihood(a.GetAdult()),
		Violence: Likelihood(a.GetViolence()),
		Racy:     Likelihood(a.GetRacy()),
		Medical:  Likelihood(a.GetMedical()),
		Spoof:    Likelihood(a.GetSpoof()),
	}
}
