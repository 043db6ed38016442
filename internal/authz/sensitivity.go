package authz

import (
	id "opsgate/pkg/domain"

	"opsgate/internal/authz/ports"
)

// defaultMaskedFields is what callers must redact when the maskPII
// obligation fires.
var defaultMaskedFields = []string{
	"full_name", "phone", "email", "address", "government_id",
}

// defaultExportRestrictions accompany any allowed export touching PII.
var defaultExportRestrictions = []string{
	"mask_personal_data", "redact_sensitive_fields", "audit_export_access",
}

// evaluateSensitivity cross-references the user's PII scope (or its
// case-scoped override) against the resource's classification, plus the
// export/batch and legal-basis rules. Rules run in classification order;
// the first violated rule's reason is authoritative.
func evaluateSensitivity(catalog ports.RoleCatalog, req EvaluateRequest, grant grantResolution, mfa mfaState, overrideGranted bool) stageResult {
	var res stageResult

	scope := req.User.PIIScope
	if override, ok := grant.scopeOverride(); ok {
		scope = override
	}
	mfaFresh := mfa.present && mfa.fresh

	switch req.Resource.DataClass {
	case id.DataClassRestricted:
		if req.Resource.ContainsPII {
			if scope != id.PIIScopeFull || !mfaFresh {
				res.deny(ReasonRestrictedPIINeedsMFA)
				return res
			}
		} else if scope != id.PIIScopeFull {
			res.deny(ReasonRestrictedNeedsSpecialized)
			return res
		}

	case id.DataClassConfidential:
		if req.Resource.ContainsPII && scope == id.PIIScopeNone {
			res.deny(ReasonPIIScopeInsufficient)
			return res
		}
		home := primaryRegions(catalog, req.User)
		if !home.Contains(req.Resource.Region) && !overrideGranted {
			res.deny(ReasonConfidentialCrossRegion)
			return res
		}

	case id.DataClassInternal:
		if req.Resource.ContainsPII && !(scope == id.PIIScopeFull && mfaFresh) {
			res.obligation(ObMaskPII, true)
			res.obligation(ObMaskedFields, append([]string(nil), defaultMaskedFields...))
		}
	}

	if req.Context.Export && req.Resource.ContainsPII {
		if scope == id.PIIScopeNone {
			res.deny(ReasonPIIScopeInsufficient)
			return res
		}
		if req.Context.ExportUnmasked && scope != id.PIIScopeFull {
			res.deny(ReasonExportNeedsFullScope)
			return res
		}
		res.obligation(ObExportRestrictions, append([]string(nil), defaultExportRestrictions...))
	}

	if req.Context.Batch && req.Resource.ContainsPII {
		if scope == id.PIIScopeNone {
			res.deny(ReasonBatchPIINeedsScope)
			res.obligation(ObPreventPIILeak, true)
			return res
		}
		// Batch pipelines cannot answer an interactive challenge later, so
		// presence is required up front regardless of scope.
		if !mfa.present {
			res.deny(ReasonBatchPIINeedsMFA)
			return res
		}
	}

	if req.Resource.DataCategory == id.DataCategorySensitivePersonal {
		if !req.Context.LegalBasis {
			res.deny(ReasonLegalBasisRequired)
			return res
		}
		res.obligation(ObNotifyDPO, true)
		res.obligation(ObAuditLevel, AuditLevelMaximum)
	}

	if req.Resource.ContainsPII {
		res.obligation(ObPIIScope, scope.String())
	}
	return res
}
