package signer

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// AcquireDirectCertificate runs acquire_direct_certificate (spec.md §4.3):
// either mints a certificate locally from fields the caller already holds
// and signs it with the wallet's own key, or — for the issuance protocol —
// delegates to a configured Certifier collaborator before storing the
// result.
func (s *Signer) AcquireDirectCertificate(ctx context.Context, userID int64, args wdk.AcquireCertificateArgs) (*wdk.CertificateResult, error) {
	if args.Type == "" {
		return nil, wdk.InvalidParameter("type", "must be non-empty")
	}
	if args.Certifier == "" {
		return nil, wdk.InvalidParameter("certifier", "must be non-empty")
	}

	var row *entity.Certificate
	switch args.AcquisitionProtocol {
	case wdk.AcquisitionIssuance:
		if s.certifier == nil {
			return nil, wdk.Runtime("certifier")
		}
		subjectPubKey, err := s.keys.RootPublicKey(ctx)
		if err != nil {
			return nil, wdk.NewError(wdk.KindRuntime, "derive subject public key: %v", err)
		}
		issued, err := s.certifier.RequestCertificate(ctx, args, subjectPubKey)
		if err != nil {
			return nil, wdk.Authentication("certifier request failed: " + err.Error())
		}
		row, err = s.persistIssuedCertificate(ctx, userID, args, issued)
		if err != nil {
			return nil, err
		}

	default:
		signed, err := s.mintDirectCertificate(ctx, userID, args)
		if err != nil {
			return nil, err
		}
		row = signed
	}

	return certificateToResult(row), nil
}

// mintDirectCertificate builds and self-signs a certificate from fields the
// caller already supplied, the "direct" acquisition path.
func (s *Signer) mintDirectCertificate(ctx context.Context, userID int64, args wdk.AcquireCertificateArgs) (*entity.Certificate, error) {
	serial, err := s.rand.Base64URL(16)
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "generate serial number: %v", err)
	}

	fields := make([]entity.CertificateField, 0, len(args.Fields))
	for _, f := range args.Fields {
		fields = append(fields, entity.CertificateField{FieldName: f.Name, FieldValue: f.Value})
	}

	payload := certificateSigningPayload(args.Type, args.Subject, args.Certifier, serial, fields)
	sig, err := s.keys.Sign(ctx, adminProtocol, "certificate", wdk.Counterparty{Kind: wdk.CounterpartySelf}, hashBytes(payload))
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "sign certificate: %v", err)
	}

	row := &entity.Certificate{
		UserID:       userID,
		Type:         args.Type,
		SerialNumber: serial,
		Subject:      args.Subject,
		Certifier:    args.Certifier,
		Signature:    sig,
		Fields:       fields,
	}
	if args.RevocationOutpoint != "" {
		row.RevocationOutpoint = sqlNullString(args.RevocationOutpoint)
	}

	return s.repos.Certificates.Create(ctx, row)
}

// persistIssuedCertificate stores a certificate a Certifier collaborator
// returned, carrying forward its certifier-assigned serial number and
// signature rather than minting new ones.
func (s *Signer) persistIssuedCertificate(ctx context.Context, userID int64, args wdk.AcquireCertificateArgs, issued *wdk.CertificateResult) (*entity.Certificate, error) {
	fields := make([]entity.CertificateField, 0, len(issued.Fields))
	for name, value := range issued.Fields {
		fields = append(fields, entity.CertificateField{FieldName: name, FieldValue: value})
	}

	row := &entity.Certificate{
		UserID:       userID,
		Type:         issued.Type,
		SerialNumber: issued.SerialNumber,
		Subject:      issued.Subject,
		Certifier:    issued.Certifier,
		Signature:    issued.Signature,
		Fields:       fields,
	}
	if issued.RevocationOutpoint != "" {
		row.RevocationOutpoint = sqlNullString(issued.RevocationOutpoint)
	}
	if issued.CertificateID != "" {
		if parsed, err := uuid.Parse(issued.CertificateID); err == nil {
			row.CertificateID = parsed
		}
	}

	return s.repos.Certificates.Create(ctx, row)
}

// ProveCertificate runs prove_certificate (spec.md §4.3): loads a
// previously-acquired certificate and discloses only the requested subset
// of its fields, along with the keyring the verifier needs to read them.
func (s *Signer) ProveCertificate(ctx context.Context, args wdk.ProveCertificateArgs) (*wdk.ProveCertificateResult, error) {
	certID, err := uuid.Parse(args.CertificateID)
	if err != nil {
		return nil, wdk.InvalidParameter("certificateId", "must be a valid certificate id")
	}
	if len(args.FieldsToReveal) == 0 {
		return nil, wdk.InvalidParameter("fieldsToReveal", "must name at least one field")
	}

	row, err := s.repos.Certificates.GetByID(ctx, certID)
	if err != nil {
		return nil, wdk.InvalidParameter("certificateId", "no such certificate")
	}

	byName := make(map[string]string, len(row.Fields))
	for _, f := range row.Fields {
		byName[f.FieldName] = f.FieldValue
	}

	disclosed := make(map[string]string, len(args.FieldsToReveal))
	keyring := make(map[string]string, len(args.FieldsToReveal))
	for _, name := range args.FieldsToReveal {
		value, ok := byName[name]
		if !ok {
			return nil, wdk.InvalidParameter("fieldsToReveal", "unknown field "+name)
		}
		encrypted, err := s.keys.Encrypt(ctx, adminProtocol, "certificate field "+name, wdk.Counterparty{Kind: wdk.CounterpartySelf}, []byte(value))
		if err != nil {
			return nil, wdk.NewError(wdk.KindRuntime, "encrypt disclosed field %q: %v", name, err)
		}
		disclosed[name] = hex.EncodeToString(encrypted)
		keyring[name] = args.Verifier
	}

	result := certificateToResult(row)
	result.Fields = disclosed
	return &wdk.ProveCertificateResult{KeyringForVerifier: keyring, Certificate: *result}, nil
}

// adminProtocol is the fixed protocol under which the wallet signs and
// encrypts its own certificate material (spec.md §4.3's "admin metadata
// encryption", security level 2).
var adminProtocol = wdk.Protocol{SecurityLevel: 2, Name: "admin metadata encryption"}

func certificateSigningPayload(certType, subject, certifier, serial string, fields []entity.CertificateField) []byte {
	buf := []byte(certType + "|" + subject + "|" + certifier + "|" + serial)
	for _, f := range fields {
		buf = append(buf, '|')
		buf = append(buf, []byte(f.FieldName+"="+f.FieldValue)...)
	}
	return buf
}

func certificateToResult(row *entity.Certificate) *wdk.CertificateResult {
	fields := make(map[string]string, len(row.Fields))
	for _, f := range row.Fields {
		fields[f.FieldName] = f.FieldValue
	}
	return &wdk.CertificateResult{
		CertificateID:      row.CertificateID.String(),
		Type:               row.Type,
		Subject:            row.Subject,
		Certifier:          row.Certifier,
		SerialNumber:       row.SerialNumber,
		RevocationOutpoint: row.RevocationOutpoint.String,
		Signature:          row.Signature,
		Fields:             fields,
	}
}
