package wallet

import (
	"context"

	"github.com/google/uuid"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// AcquireCertificate runs acquire_direct_certificate (spec.md §4.3, §6.1).
func (w *Wallet) AcquireCertificate(ctx context.Context, userID int64, originator string, args wdk.AcquireCertificateArgs) (wdk.CertificateResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.CertificateResult{}, err
	}
	result, err := w.signer.AcquireDirectCertificate(ctx, userID, args)
	if err != nil {
		return wdk.CertificateResult{}, err
	}
	return *result, nil
}

// ProveCertificate runs prove_certificate (spec.md §4.3, §6.1).
func (w *Wallet) ProveCertificate(ctx context.Context, userID int64, originator string, args wdk.ProveCertificateArgs) (wdk.ProveCertificateResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.ProveCertificateResult{}, err
	}
	result, err := w.signer.ProveCertificate(ctx, args)
	if err != nil {
		return wdk.ProveCertificateResult{}, err
	}
	return *result, nil
}

// ListCertificates runs list_certificates (spec.md §6.1).
func (w *Wallet) ListCertificates(ctx context.Context, userID int64, originator string, args wdk.ListCertificatesArgs) (wdk.ListCertificatesResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.ListCertificatesResult{}, err
	}
	rows, total, err := w.repos.Certificates.ListByUserFiltered(ctx, userID, args.Types, args.Certifiers, args.Limit, args.Offset)
	if err != nil {
		return wdk.ListCertificatesResult{}, wdk.NewError(wdk.KindRuntime, "list certificates: %v", err)
	}
	return wdk.ListCertificatesResult{TotalCertificates: total, Certificates: toCertificateResults(rows)}, nil
}

// RelinquishCertificate runs relinquish_certificate (spec.md §6.1): a
// caller may only relinquish a certificate it owns.
func (w *Wallet) RelinquishCertificate(ctx context.Context, userID int64, originator string, args wdk.RelinquishCertificateArgs) error {
	if err := validateOriginator(originator); err != nil {
		return err
	}
	certID, err := uuid.Parse(args.CertificateID)
	if err != nil {
		return wdk.InvalidParameter("certificateId", "must be a valid certificate id")
	}
	cert, err := w.repos.Certificates.GetByID(ctx, certID)
	if err != nil || cert.UserID != userID {
		return wdk.InvalidParameter("certificateId", "no matching certificate found")
	}
	if err := w.repos.Certificates.Relinquish(ctx, certID); err != nil {
		return wdk.NewError(wdk.KindRuntime, "relinquish certificate: %v", err)
	}
	return nil
}

// DiscoverByIdentityKey runs discover_by_identity_key (spec.md §6.1): a
// read-only lookup over locally-held certificates whose subject matches
// the given identity key, since no overlay/certifier network transport is
// in scope (spec.md §1).
func (w *Wallet) DiscoverByIdentityKey(ctx context.Context, userID int64, originator string, args wdk.DiscoverByIdentityKeyArgs) (wdk.DiscoverCertificatesResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.DiscoverCertificatesResult{}, err
	}
	rows, total, err := w.repos.Certificates.FindBySubject(ctx, args.IdentityKey, args.Limit, args.Offset)
	if err != nil {
		return wdk.DiscoverCertificatesResult{}, wdk.NewError(wdk.KindRuntime, "discover by identity key: %v", err)
	}
	return wdk.DiscoverCertificatesResult{TotalCertificates: total, Certificates: toCertificateResults(rows)}, nil
}

// DiscoverByAttributes runs discover_by_attributes (spec.md §6.1): a
// read-only lookup over locally-held certificates carrying every named
// field value.
func (w *Wallet) DiscoverByAttributes(ctx context.Context, userID int64, originator string, args wdk.DiscoverByAttributesArgs) (wdk.DiscoverCertificatesResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.DiscoverCertificatesResult{}, err
	}
	rows, total, err := w.repos.Certificates.FindByAttributes(ctx, args.Attributes, args.Limit, args.Offset)
	if err != nil {
		return wdk.DiscoverCertificatesResult{}, wdk.NewError(wdk.KindRuntime, "discover by attributes: %v", err)
	}
	return wdk.DiscoverCertificatesResult{TotalCertificates: total, Certificates: toCertificateResults(rows)}, nil
}

func toCertificateResults(rows []*entity.Certificate) []wdk.CertificateResult {
	out := make([]wdk.CertificateResult, len(rows))
	for i, c := range rows {
		fields := make(map[string]string, len(c.Fields))
		for _, f := range c.Fields {
			fields[f.FieldName] = f.FieldValue
		}
		out[i] = wdk.CertificateResult{
			CertificateID:      c.CertificateID.String(),
			Type:               c.Type,
			Subject:            c.Subject,
			Certifier:          c.Certifier,
			SerialNumber:       c.SerialNumber,
			RevocationOutpoint: c.RevocationOutpoint.String,
			Signature:          c.Signature,
			Fields:             fields,
		}
	}
	return out
}
