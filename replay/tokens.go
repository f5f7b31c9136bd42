package replay

import "context"

// FormTokens are the hidden values a rendered form must carry.
type FormTokens struct {
	CSRFToken    string `json:"csrf_token"`
	Nonce        string `json:"nonce"`
	SubmissionID string `json:"submission_id"`
}

// FormTokens issues everything a protected form needs in one call.
func (g *Guard) FormTokens(ctx context.Context, sid string, info RequestInfo) (FormTokens, error) {
	csrf, err := g.IssueCSRFToken(ctx, sid)
	if err != nil {
		return FormTokens{}, err
	}
	nonce, err := g.IssueNonce(ctx, sid, info)
	if err != nil {
		return FormTokens{}, err
	}
	subID, err := NewSubmissionID()
	if err != nil {
		return FormTokens{}, err
	}
	return FormTokens{CSRFToken: csrf, Nonce: nonce, SubmissionID: subID}, nil
}
