package authz

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	id "opsgate/pkg/domain"
)

// cacheKey derives a stable hash over every input that can change the
// decision. Purely informational fields (device ID, IP, justification,
// approver identities) are excluded: they flow into audit metadata but never
// into the effect, reasons, or obligations. GeoLocation is included because
// the location-change heuristic contributes obligations.
func cacheKey(req EvaluateRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "u=%s|scope=%s|mfaEnabled=%t", req.User.ID, req.User.PIIScope, req.User.MFAEnabled)

	assignments := make([]string, 0, len(req.User.Assignments))
	for _, a := range req.User.Assignments {
		assignments = append(assignments, fmt.Sprintf("%s:%t:%s", a.Role, a.Active, regionsKey(a.Regions)))
	}
	sort.Strings(assignments)
	fmt.Fprintf(&b, "|ra=%s", strings.Join(assignments, ","))

	grants := make([]string, 0, len(req.User.Grants))
	for _, g := range req.User.Grants {
		grants = append(grants, fmt.Sprintf("%s:%s:%t:%d:%s:%s:%s",
			g.ID, g.CaseID, g.Active, g.ExpiresAt.UnixNano(),
			regionsKey(g.GrantedRegions), g.PIIScopeOverride, g.EscalationType))
	}
	sort.Strings(grants)
	fmt.Fprintf(&b, "|ta=%s", strings.Join(grants, ","))

	fmt.Fprintf(&b, "|res=%s:%s:%t:%s",
		req.Resource.Region, req.Resource.DataClass, req.Resource.ContainsPII, req.Resource.DataCategory)

	fmt.Fprintf(&b, "|act=%s", req.Action)

	c := req.Context
	fmt.Fprintf(&b, "|ctx=%s:%t:%d:%s:%d:%d:%t:%s:%t:%t:%t:%t:%s:%s",
		c.Channel, c.MFAPresent, c.MFATimestamp.UnixNano(), c.MFAMethod,
		int64(c.MFATimeout), int64(c.StepUpTimeout), c.ElevatedOperation,
		c.CaseID, c.LegalBasis, c.Export, c.ExportUnmasked, c.Batch,
		c.OriginalRegion, c.GeoLocation)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func regionsKey(r id.Regions) string {
	if r.IsGlobal() {
		return "*global*"
	}
	list := r.List()
	parts := make([]string, 0, len(list))
	for _, region := range list {
		parts = append(parts, region.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, "+")
}
