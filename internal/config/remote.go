package config

import "gopkg.in/yaml.v3"

const (
	AnonymousUser         = "anonymous"
	AnonymousPassword     = "anonymous@"
	DefaultRemotePath     = "/targets.txt"
	DefaultRemoteProtocol = "ftp"
)

// RemoteSource locates the remotely managed target list
type RemoteSource struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"-"`
	Path     string `json:"path"`
	Protocol string `json:"protocol"`
}

// Enabled reports whether a remote source is configured
func (r RemoteSource) Enabled() bool {
	return r.Host != ""
}

// rawRemote accepts the key aliases found in deployed ftp.yaml files
type rawRemote struct {
	Host     string `yaml:"host"`
	Server   string `yaml:"server"`
	User     string `yaml:"user"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Pass     string `yaml:"pass"`
	Path     string `yaml:"path"`
	Protocol string `yaml:"protocol"`
	Scheme   string `yaml:"scheme"`
}

func parseRemote(data []byte) (RemoteSource, error) {
	var raw rawRemote
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RemoteSource{}, err
	}

	host := firstNonEmpty(raw.Host, raw.Server)
	if host == "" {
		return RemoteSource{}, nil
	}

	return RemoteSource{
		Host:     host,
		User:     firstNonEmpty(raw.User, raw.Username, AnonymousUser),
		Password: firstNonEmpty(raw.Password, raw.Pass, AnonymousPassword),
		Path:     firstNonEmpty(raw.Path, DefaultRemotePath),
		Protocol: firstNonEmpty(raw.Protocol, raw.Scheme, DefaultRemoteProtocol),
	}, nil
}
