package liveness

import (
	"context"
	"fmt"
)

// FrameSample is the evaluation of one frame with exactly one face. It is
// never modified after Score returns it.
type FrameSample struct {
	Frame      Frame
	Face       Face
	SizeRatio  float64
	Frontality float64
	Quality    float64
	Real       float64
	Live       float64
	InBounds   bool
	Passed     bool
}

type FrameScorer struct {
	cfg        Config
	detector   Detector
	classifier Classifier
	frontality *FrontalityEvaluator
	quality    *QualityEvaluator
}

func NewFrameScorer(cfg Config, detector Detector, classifier Classifier) *FrameScorer {
	return &FrameScorer{
		cfg:        cfg,
		detector:   detector,
		classifier: classifier,
		frontality: NewFrontalityEvaluator(cfg),
		quality:    NewQualityEvaluator(cfg),
	}
}

// Score runs the detector and classifier on frame. A nil sample is returned
// for NO_FACE, MULTIPLE_FACE and DETECTION_ERROR.
func (s *FrameScorer) Score(ctx context.Context, frame Frame) (*FrameSample, StatusCode, error) {
	if enc, ok := s.detector.(FrameEncoder); ok && len(frame.Data) == 0 {
		data, err := enc.EncodeFrame(frame)
		if err != nil {
			return nil, StatusDetectionError, fmt.Errorf("encode: %w", err)
		}
		frame.Data = data
	}

	faces, err := s.detector.Detect(ctx, frame)
	if err != nil {
		return nil, StatusDetectionError, fmt.Errorf("detect: %w", err)
	}

	switch len(faces) {
	case 0:
		return nil, StatusNoFace, nil
	case 1:
	default:
		return nil, StatusMultipleFace, nil
	}

	face := faces[0]
	scores, err := s.classifier.Classify(ctx, frame, face)
	if err != nil {
		return nil, StatusDetectionError, fmt.Errorf("classify: %w", err)
	}

	sample := &FrameSample{
		Frame:      frame,
		Face:       face,
		SizeRatio:  sizeRatio(face.Box, frame.Width, frame.Height),
		Frontality: s.frontality.Score(face.Pose),
		InBounds:   face.Box.Within(frame.Width, frame.Height),
		Real:       clamp01(scores.Real),
		Live:       clamp01(scores.Live),
	}

	var qualityOK bool
	sample.Quality, qualityOK = s.quality.Evaluate(face.BoxScore, face.FaceScore, sample.InBounds)

	status := s.classify(sample, qualityOK)
	sample.Passed = status == StatusOK
	return sample, status, nil
}

func (s *FrameScorer) classify(sample *FrameSample, qualityOK bool) StatusCode {
	switch {
	case sample.SizeRatio < s.cfg.MinFaceRatio:
		return StatusFaceTooSmall
	case sample.SizeRatio > s.cfg.MaxFaceRatio:
		return StatusFaceTooLarge
	case s.cfg.RequireFullFaceInBounds && !sample.InBounds:
		return StatusFaceOutOfBounds
	case !qualityOK:
		return StatusPoorQuality
	case sample.Frontality < s.cfg.MinFaceFrontal:
		return StatusNotFrontal
	case sample.Real < s.cfg.MinRealScore:
		return StatusNotReal
	case sample.Live < s.cfg.MinLiveScore:
		return StatusNotLive
	}
	return StatusOK
}

func sizeRatio(box Box, width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	return clamp01(box.Area() / float64(width*height))
}
