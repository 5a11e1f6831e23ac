package permissions

import (
	"context"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// labelForAudit is the label every outgoing action gets for a non-admin
// originator (spec.md §4.4: "Non-admin paths inject 'admin originator
// <origin>' as a label on every outgoing action for audit").
func labelForAudit(originator string) string {
	return fmt.Sprintf("admin originator %s", originator)
}

func (m *Manager) GetVersion(ctx context.Context, userID int64, originator string) (wdk.VersionResult, error) {
	return m.wallet.GetVersion(ctx, userID, originator)
}

func (m *Manager) GetNetwork(ctx context.Context, userID int64, originator string) (wdk.NetworkResult, error) {
	return m.wallet.GetNetwork(ctx, userID, originator)
}

func (m *Manager) GetPublicKey(ctx context.Context, userID int64, originator string, args wdk.GetPublicKeyArgs) (wdk.ByteSlice, error) {
	if !args.IdentityKey {
		if err := m.ensure(ctx, userID, originator, CategoryProtocol, protocolResourceKey(args.ProtocolID), 0); err != nil {
			return nil, err
		}
	}
	return m.wallet.GetPublicKey(ctx, userID, originator, args)
}

func (m *Manager) CreateSignature(ctx context.Context, userID int64, originator string, args wdk.CreateSignatureArgs) (wdk.ByteSlice, error) {
	if err := m.ensure(ctx, userID, originator, CategoryProtocol, protocolResourceKey(args.ProtocolID), 0); err != nil {
		return nil, err
	}
	return m.wallet.CreateSignature(ctx, userID, originator, args)
}

func (m *Manager) VerifySignature(ctx context.Context, userID int64, originator string, args wdk.VerifySignatureArgs) (bool, error) {
	if err := m.ensure(ctx, userID, originator, CategoryProtocol, protocolResourceKey(args.ProtocolID), 0); err != nil {
		return false, err
	}
	return m.wallet.VerifySignature(ctx, userID, originator, args)
}

func (m *Manager) Encrypt(ctx context.Context, userID int64, originator string, args wdk.EncryptArgs) (wdk.ByteSlice, error) {
	if err := m.ensure(ctx, userID, originator, CategoryProtocol, protocolResourceKey(args.ProtocolID), 0); err != nil {
		return nil, err
	}
	return m.wallet.Encrypt(ctx, userID, originator, args)
}

func (m *Manager) Decrypt(ctx context.Context, userID int64, originator string, args wdk.DecryptArgs) (wdk.ByteSlice, error) {
	if err := m.ensure(ctx, userID, originator, CategoryProtocol, protocolResourceKey(args.ProtocolID), 0); err != nil {
		return nil, err
	}
	return m.wallet.Decrypt(ctx, userID, originator, args)
}

func (m *Manager) CreateHmac(ctx context.Context, userID int64, originator string, args wdk.CreateHmacArgs) (wdk.ByteSlice, error) {
	if err := m.ensure(ctx, userID, originator, CategoryProtocol, protocolResourceKey(args.ProtocolID), 0); err != nil {
		return nil, err
	}
	return m.wallet.CreateHmac(ctx, userID, originator, args)
}

func (m *Manager) VerifyHmac(ctx context.Context, userID int64, originator string, args wdk.VerifyHmacArgs) (bool, error) {
	if err := m.ensure(ctx, userID, originator, CategoryProtocol, protocolResourceKey(args.ProtocolID), 0); err != nil {
		return false, err
	}
	return m.wallet.VerifyHmac(ctx, userID, originator, args)
}

// CreateAction enforces DBAP for any non-default basket the outputs
// reference, forwards to the underlying wallet (optionally encrypting
// metadata and stamping the audit label), then enforces DSAP against the
// summed satoshis of the requested outputs — aborting the freshly created
// reference via the
// underlying wallet if spending authorization is denied (spec.md §4.4).
func (m *Manager) CreateAction(ctx context.Context, userID int64, originator string, args wdk.CreateActionArgs) (wdk.CreateActionResult, error) {
	for _, basket := range nonDefaultBaskets(args.Outputs) {
		if err := m.ensure(ctx, userID, originator, CategoryBasket, basket, 0); err != nil {
			return wdk.CreateActionResult{}, err
		}
	}

	prepared, err := m.prepareCreateActionArgs(ctx, userID, originator, args)
	if err != nil {
		return wdk.CreateActionResult{}, err
	}

	result, err := m.wallet.CreateAction(ctx, userID, originator, prepared)
	if err != nil {
		return result, err
	}

	amount := spendAmount(args)
	if amount > 0 && !m.isAdmin(originator) {
		if denyErr := m.ensure(ctx, userID, originator, CategorySpending, "", amount); denyErr != nil {
			if result.Reference != "" {
				if _, abortErr := m.wallet.AbortAction(ctx, userID, originator, wdk.AbortActionArgs{Reference: result.Reference}); abortErr != nil {
					return wdk.CreateActionResult{}, wdk.NewError(wdk.KindRuntime, "abort denied action %q: %v (denial: %v)", result.Reference, abortErr, denyErr)
				}
			}
			return wdk.CreateActionResult{}, denyErr
		}
		m.trackSpending(ctx, userID, originator, amount)
	}

	return result, nil
}

// prepareCreateActionArgs copies args, injects the audit label for
// non-admin originators, and encrypts metadata fields when configured.
func (m *Manager) prepareCreateActionArgs(ctx context.Context, userID int64, originator string, args wdk.CreateActionArgs) (wdk.CreateActionArgs, error) {
	out := args
	if !m.isAdmin(originator) {
		labels := make([]string, 0, len(args.Labels)+1)
		labels = append(labels, args.Labels...)
		labels = append(labels, labelForAudit(originator))
		out.Labels = labels
	}

	desc, err := m.encryptMetadata(ctx, userID, args.Description)
	if err != nil {
		return wdk.CreateActionArgs{}, err
	}
	out.Description = desc

	if len(args.Outputs) > 0 {
		outputs := make([]wdk.CreateActionOutput, len(args.Outputs))
		copy(outputs, args.Outputs)
		for i := range outputs {
			od, err := m.encryptMetadata(ctx, userID, outputs[i].OutputDescription)
			if err != nil {
				return wdk.CreateActionArgs{}, err
			}
			ci, err := m.encryptMetadata(ctx, userID, outputs[i].CustomInstructions)
			if err != nil {
				return wdk.CreateActionArgs{}, err
			}
			outputs[i].OutputDescription = od
			outputs[i].CustomInstructions = ci
		}
		out.Outputs = outputs
	}

	if len(args.Inputs) > 0 {
		inputs := make([]wdk.CreateActionInput, len(args.Inputs))
		copy(inputs, args.Inputs)
		for i := range inputs {
			id, err := m.encryptMetadata(ctx, userID, inputs[i].InputDescription)
			if err != nil {
				return wdk.CreateActionArgs{}, err
			}
			inputs[i].InputDescription = id
		}
		out.Inputs = inputs
	}

	return out, nil
}

func (m *Manager) SignAction(ctx context.Context, userID int64, originator string, args wdk.SignActionArgs) (wdk.SignActionResult, error) {
	return m.wallet.SignAction(ctx, userID, originator, args)
}

func (m *Manager) AbortAction(ctx context.Context, userID int64, originator string, args wdk.AbortActionArgs) (wdk.AbortActionResult, error) {
	return m.wallet.AbortAction(ctx, userID, originator, args)
}

func (m *Manager) InternalizeAction(ctx context.Context, userID int64, originator string, args wdk.InternalizeActionArgs) (wdk.InternalizeActionResult, error) {
	return m.wallet.InternalizeAction(ctx, userID, originator, args)
}

func (m *Manager) ListActions(ctx context.Context, userID int64, originator string, args wdk.ListActionsArgs) (wdk.ListActionsResult, error) {
	result, err := m.wallet.ListActions(ctx, userID, originator, args)
	if err != nil {
		return result, err
	}
	for i := range result.Actions {
		desc, derr := m.decryptMetadata(ctx, userID, result.Actions[i].Description)
		if derr != nil {
			return wdk.ListActionsResult{}, derr
		}
		result.Actions[i].Description = desc
	}
	return result, nil
}

func (m *Manager) ListOutputs(ctx context.Context, userID int64, originator string, args wdk.ListOutputsArgs) (wdk.ListOutputsResult, error) {
	if args.Basket != "" && args.Basket != wdk.BasketNameForChange {
		if err := m.ensure(ctx, userID, originator, CategoryBasket, args.Basket, 0); err != nil {
			return wdk.ListOutputsResult{}, err
		}
	}
	result, err := m.wallet.ListOutputs(ctx, userID, originator, args)
	if err != nil {
		return result, err
	}
	for i := range result.Outputs {
		ci, derr := m.decryptMetadata(ctx, userID, result.Outputs[i].CustomInstructions)
		if derr != nil {
			return wdk.ListOutputsResult{}, derr
		}
		result.Outputs[i].CustomInstructions = ci
	}
	return result, nil
}

func (m *Manager) RelinquishOutput(ctx context.Context, userID int64, originator string, args wdk.RelinquishOutputArgs) error {
	if args.Basket != "" && args.Basket != wdk.BasketNameForChange {
		if err := m.ensure(ctx, userID, originator, CategoryBasket, args.Basket, 0); err != nil {
			return err
		}
	}
	return m.wallet.RelinquishOutput(ctx, userID, originator, args)
}

func (m *Manager) AcquireCertificate(ctx context.Context, userID int64, originator string, args wdk.AcquireCertificateArgs) (wdk.CertificateResult, error) {
	if err := m.ensure(ctx, userID, originator, CategoryCertificate, args.Type, 0); err != nil {
		return wdk.CertificateResult{}, err
	}
	return m.wallet.AcquireCertificate(ctx, userID, originator, args)
}

func (m *Manager) ProveCertificate(ctx context.Context, userID int64, originator string, args wdk.ProveCertificateArgs) (wdk.ProveCertificateResult, error) {
	if err := m.ensure(ctx, userID, originator, CategoryCertificate, args.CertificateID, 0); err != nil {
		return wdk.ProveCertificateResult{}, err
	}
	return m.wallet.ProveCertificate(ctx, userID, originator, args)
}

func (m *Manager) ListCertificates(ctx context.Context, userID int64, originator string, args wdk.ListCertificatesArgs) (wdk.ListCertificatesResult, error) {
	return m.wallet.ListCertificates(ctx, userID, originator, args)
}

func (m *Manager) RelinquishCertificate(ctx context.Context, userID int64, originator string, args wdk.RelinquishCertificateArgs) error {
	if err := m.ensure(ctx, userID, originator, CategoryCertificate, args.CertificateID, 0); err != nil {
		return err
	}
	return m.wallet.RelinquishCertificate(ctx, userID, originator, args)
}

func (m *Manager) DiscoverByIdentityKey(ctx context.Context, userID int64, originator string, args wdk.DiscoverByIdentityKeyArgs) (wdk.DiscoverCertificatesResult, error) {
	return m.wallet.DiscoverByIdentityKey(ctx, userID, originator, args)
}

func (m *Manager) DiscoverByAttributes(ctx context.Context, userID int64, originator string, args wdk.DiscoverByAttributesArgs) (wdk.DiscoverCertificatesResult, error) {
	return m.wallet.DiscoverByAttributes(ctx, userID, originator, args)
}

var _ wdk.Wallet = (*Manager)(nil)
