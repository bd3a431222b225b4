package domain

// AccessPolicyInput is what the optional Rego access policy sees for one
// authorization decision.
type AccessPolicyInput struct {
	Subject     string   `json:"subject"`
	BusinessID  string   `json:"business_id"`
	Role        string   `json:"role"`
	RoleLevel   int      `json:"role_level"`
	Permissions []string `json:"permissions"`
	Superuser   bool     `json:"superuser"`
	Method      string   `json:"method"`
	Path        string   `json:"path"`
}

type AccessPolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type AccessPolicyResult struct {
	Allow bool               `json:"allow"`
	Deny  []AccessPolicyDeny `json:"deny,omitempty"`
}

type AccessPolicyEvaluation struct {
	BundleID   string             `json:"bundle_id,omitempty"`
	BundleHash string             `json:"bundle_hash"`
	Result     AccessPolicyResult `json:"result"`
}
