package inventory

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is a mock implementation of the libvirtClient interface for testing.
type mockLibvirtClient struct {
	domains  []libvirt.Domain
	listErr  error
	states   map[string]int32
	stateErr map[string]error
	xml      map[string]string

	listCalls int
}

func (m *mockLibvirtClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.domains, uint32(len(m.domains)), nil
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	if err := m.stateErr[dom.Name]; err != nil {
		return 0, 0, err
	}
	return m.states[dom.Name], 0, nil
}

func (m *mockLibvirtClient) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	x, ok := m.xml[dom.Name]
	if !ok {
		return "", fmt.Errorf("no XML for domain %s", dom.Name)
	}
	return x, nil
}
