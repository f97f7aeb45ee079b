package mail

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mailgate/internal/apperr"
)

// Policy holds the destination rules applied after payload validation.
type Policy struct {
	BlockedHosts []string `yaml:"blocked_hosts"`
}

func DefaultPolicy() Policy {
	return Policy{BlockedHosts: []string{"microsoft.com", "apple.com", "intel.com"}}
}

func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, err
	}
	for i, h := range p.BlockedHosts {
		p.BlockedHosts[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return p, nil
}

// Check rejects addresses whose domain is a blocked host or one of its
// subdomains.
func (p Policy) Check(address string) error {
	at := strings.LastIndexByte(address, '@')
	domain := strings.ToLower(address[at+1:])
	for _, host := range p.BlockedHosts {
		host = strings.ToLower(host)
		if host == "" {
			continue
		}
		if domain == host || strings.HasSuffix(domain, "."+host) {
			return apperr.Newf(apperr.KindMailDestinationInvalid, domain)
		}
	}
	return nil
}
