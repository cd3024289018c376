// Package libvirt manages connections to the local libvirt daemon.
//
// This package wraps github.com/digitalocean/go-libvirt. Consumers such as
// the inventory package define their own interfaces listing only the calls
// they make; *libvirt.Libvirt satisfies them implicitly:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	domains, _, err := client.Libvirt().ConnectListAllDomains(1, 0)
package libvirt
