package services

import (
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/apexvest/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

const settlementBIC = "APEXVEST"

// SettlementService builds ISO 20022 payment messages for approved
// withdrawals: pacs.008 credit transfers for payouts and pacs.002
// status reports for rejections.
type SettlementService struct{}

func NewSettlementService() *SettlementService {
	return &SettlementService{}
}

// SendPayoutInstruction emits a pacs.008 credit transfer for a
// finalized withdrawal.
func (s *SettlementService) SendPayoutInstruction(t *models.Transaction) error {
	doc, err := s.buildPacs008(t)
	if err != nil {
		return err
	}
	return s.dispatch(doc)
}

// SendStatusReport emits a pacs.002 status report, e.g. RJCT for a
// rejected withdrawal.
func (s *SettlementService) SendStatusReport(t *models.Transaction, status string) error {
	doc, err := s.buildPacs002(t, status)
	if err != nil {
		return err
	}
	return s.dispatch(doc)
}

func (s *SettlementService) dispatch(doc any) error {
	xmlData, err := s.ConvertToXML(doc)
	if err != nil {
		return err
	}

	// TODO: wire the payout processor endpoint once provisioned.
	log.Printf("[SETTLEMENT] dispatching message (%d bytes)", len(xmlData))
	return nil
}

func (s *SettlementService) buildPacs008(t *models.Transaction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	details := t.WithdrawalDetails
	if details == nil {
		return nil, fmt.Errorf("transaction %s has no withdrawal details", t.ID)
	}

	amount := float64(-t.Amount) / 100
	if amount <= 0 {
		return nil, fmt.Errorf("transaction %s has non-positive payout amount", t.ID)
	}

	currency := details.Currency
	if currency == "" {
		currency = "USD"
	}

	msgID := uuid.New().String()
	now := time.Now()
	settlementDate := now

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(t.ID)}[0],
					EndToEndId: common.Max35Text(t.ID),
					TxId:       &[]common.Max35Text{common.Max35Text(t.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(settlementBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(t.UserID)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(details.BankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(details.AccountName)}[0],
				},
			},
		},
	}

	return doc, nil
}

func (s *SettlementService) buildPacs002(t *models.Transaction, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgID := uuid.New().String()
	now := time.Now()

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(t.ID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(t.ID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(t.ID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML marshals an ISO 20022 document to an XML string.
func (s *SettlementService) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
