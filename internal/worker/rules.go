package worker

import "swiftkyc-client/internal/api"

// Placeholder scoring. It only looks at file sizes so runs are reproducible.
const (
	minValidBytes     = 80 << 10
	fullQualityBytes  = 512 << 10
	matchScore        = 0.92
	mismatchScore     = 0.35
	matchThreshold    = 0.6
	DefaultMaxRetries = 3
)

const (
	reasonNoDocumentImage = "No document image found for validation."
	reasonUnreadable      = "Could not process document image."
	reasonLowQuality      = "Document image is too small or blurry. Please upload a clearer photo."
	reasonMaxAttempts     = " Maximum attempts reached. Please use assisted KYC."
	reasonNoFaceDocument  = "No document found for face match."
	reasonSelfieMismatch  = "Selfie does not match."
	reasonSelfieRetake    = "Selfie does not match. Please retake."
)

// documentQuality scores a document image by its size.
func documentQuality(size int64) (score float64, valid bool) {
	score = float64(size) / fullQualityBytes
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score, size >= minValidBytes
}

// faceMatch scores a selfie against the session's document.
func faceMatch(selfieSize int64) (score float64, match bool) {
	score = mismatchScore
	if selfieSize >= minValidBytes {
		score = matchScore
	}
	return score, score >= matchThreshold
}

// applyDocumentResult moves the session after a document check.
func applyDocumentResult(s *api.Session, valid bool, maxRetries int) {
	if valid {
		s.FailureReason = nil
		s.CurrentStep = api.StepSelfie
		return
	}
	s.Scan++
	reason := reasonLowQuality
	if s.Scan >= maxRetries {
		s.Status = api.StatusRejected
		reason += reasonMaxAttempts
	} else {
		s.CurrentStep = api.StepScanDoc
	}
	s.FailureReason = &reason
}

// applySelfieResult moves the session after a face match.
func applySelfieResult(s *api.Session, score float64, match bool, maxRetries int) {
	s.FaceMatchScore = &score
	if match {
		s.Status = api.StatusApproved
		s.FailureReason = nil
		s.CurrentStep = api.StepComplete
		return
	}
	s.Selfie++
	reason := reasonSelfieRetake
	if s.Selfie >= maxRetries {
		s.Status = api.StatusRejected
		reason = reasonSelfieMismatch
		s.CurrentStep = api.StepKYCCheck
	} else {
		s.CurrentStep = api.StepSelfie
	}
	s.FailureReason = &reason
}
